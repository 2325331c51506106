package sema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Metadata is the side-channel record attached to every Value: the lazily
// computed embedding, the raw response of the last backend call, and the
// last error captured on the native path.
type Metadata struct {
	embedding []float64
	raw       any
	lastErr   error
}

// Embedding returns the cached embedding vector, or nil if none has been
// computed yet.
func (m *Metadata) Embedding() []float64 { return m.embedding }

// Raw returns the raw backend response of the last semantic call.
func (m *Metadata) Raw() any { return m.raw }

// LastError returns the last error swallowed on the native path.
func (m *Metadata) LastError() error { return m.lastErr }

// Value is the symbolic value container. Operations attempt a native
// resolution first; a registered Engine is consulted only when the value is
// in semantic mode, via the Registry it was constructed with.
//
// Values are created per call site and are not safe for concurrent
// mutation. The embedding cache is computed at most once and never
// invalidated: mutating the payload after an embedding has been cached is
// a caller contract violation.
type Value struct {
	v           any
	semantic    bool
	noEngine    bool
	nilShortcut bool // true = a nil operand fails the operation (default)
	meta        Metadata
	reg         *Registry
}

// ValueOption configures a Value at construction.
type ValueOption func(*Value)

// WithRegistry hands the value the engine registry used for semantic
// resolution. Without one, any semantic path fails with ErrNoEngine.
func WithRegistry(reg *Registry) ValueOption {
	return func(v *Value) { v.reg = reg }
}

// AsSemantic marks the value so operations default to backend-mediated
// evaluation even when a native resolution exists.
func AsSemantic() ValueOption {
	return func(v *Value) { v.semantic = true }
}

// DisableEngine forbids any backend call on this value; semantic paths
// fail with ErrBackendDisabled instead.
func DisableEngine() ValueOption {
	return func(v *Value) { v.noEngine = true }
}

// TolerateNil disables the nil-operand shortcut, letting operations that
// can handle an absent payload proceed instead of failing.
func TolerateNil() ValueOption {
	return func(v *Value) { v.nilShortcut = false }
}

// New wraps a payload (string, number, boolean, mapping, sequence, or byte
// buffer) into a Value.
func New(payload any, opts ...ValueOption) *Value {
	v := &Value{v: payload, nilShortcut: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// coerce turns an operand into a Value, inheriting the receiver's registry
// and flags so a plain Go operand participates under the same rules.
func (v *Value) coerce(other any) *Value {
	if o, ok := other.(*Value); ok {
		return o
	}
	return &Value{
		v:           other,
		nilShortcut: v.nilShortcut,
		noEngine:    v.noEngine,
		reg:         v.reg,
	}
}

// derive wraps a result payload into a Value carrying the receiver's
// registry and flags forward.
func (v *Value) derive(payload any) *Value {
	return &Value{
		v:           payload,
		semantic:    v.semantic,
		noEngine:    v.noEngine,
		nilShortcut: v.nilShortcut,
		reg:         v.reg,
	}
}

// Value returns the wrapped payload.
func (v *Value) Value() any { return v.v }

// Meta returns the value's metadata side channel.
func (v *Value) Meta() *Metadata { return &v.meta }

// Registry returns the registry the value resolves engines through.
func (v *Value) Registry() *Registry { return v.reg }

// IsSemantic reports whether the value is in semantic mode.
func (v *Value) IsSemantic() bool { return v.semantic }

// IsNil reports whether the payload is absent.
func (v *Value) IsNil() bool { return v.v == nil }

// Sem returns a view of the value in semantic mode. The payload and
// metadata are shared; only the resolution strategy changes.
func (v *Value) Sem() *Value {
	s := *v
	s.semantic = true
	return &s
}

// Syn returns a view of the value in native (syntactic) mode.
func (v *Value) Syn() *Value {
	s := *v
	s.semantic = false
	return &s
}

// Bool coerces the value to a boolean. The value is false only if the
// payload is a boolean false, absent, or falsy by native truthiness
// (zero number, empty string/container); everything else is true.
func (v *Value) Bool() bool {
	switch p := v.v.(type) {
	case nil:
		return false
	case bool:
		return p
	case string:
		return p != ""
	case int:
		return p != 0
	case int64:
		return p != 0
	case float64:
		return p != 0
	case float32:
		return p != 0
	case []byte:
		return len(p) > 0
	case []any:
		return len(p) > 0
	case map[string]any:
		return len(p) > 0
	default:
		return true
	}
}

// Len returns the size of the payload's container, or the rune length of
// text. Scalars report 0.
func (v *Value) Len() int {
	switch p := v.v.(type) {
	case string:
		return len([]rune(p))
	case []byte:
		return len(p)
	case []any:
		return len(p)
	case map[string]any:
		return len(p)
	default:
		return 0
	}
}

// String renders the payload as text. Mappings and sequences render as
// canonical JSON so they survive a round trip through a backend.
func (v *Value) String() string {
	return render(v.v)
}

// Tokens encodes the rendered payload with the given tokenizer.
func (v *Value) Tokens(t Tokenizer) []int {
	return t.Encode(v.String())
}

func render(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case bool:
		return strconv.FormatBool(p)
	case int:
		return strconv.Itoa(p)
	case int64:
		return strconv.FormatInt(p, 10)
	case float64:
		return strconv.FormatFloat(p, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(p), 'g', -1, 32)
	case error:
		return p.Error()
	case fmt.Stringer:
		return p.String()
	default:
		if b, err := json.Marshal(p); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", p)
	}
}

// recoverStructure best-effort parses backend text back into the shape of
// the original container (mapping or sequence). Unparseable text is
// returned as-is.
func recoverStructure(text string) any {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m
		}
	}
	if strings.HasPrefix(trimmed, "[") {
		var s []any
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s
		}
	}
	return text
}
