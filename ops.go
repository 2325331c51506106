package sema

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/capitan"
)

// Op identifies an ordering operator for Compare.
type Op string

const (
	OpGt Op = ">"
	OpGe Op = ">="
	OpLt Op = "<"
	OpLe Op = "<="
)

// nativeFunc attempts a native resolution of a binary operation. The
// second return value reports whether a native result exists at all.
type nativeFunc func(a, b any) (any, bool)

// dispatch runs the shared resolution sequence for every binary operation:
// coerce the operand, apply the nil shortcut, attempt a native resolution
// inside a failure boundary, and either return the native result or
// forward the operation to the registered engine.
func (v *Value) dispatch(ctx context.Context, op string, other any, native nativeFunc, req *Request, parse func(resp string) any) (*Value, error) {
	o := v.coerce(other)

	capitan.Info(ctx, DispatchStarted,
		OperationKey.Field(op),
		InputKey.Field(v.String()),
	)

	if v.nilShortcut && o.nilShortcut && (v.v == nil || o.v == nil) {
		capitan.Error(ctx, DispatchFailed,
			OperationKey.Field(op),
			ErrorKey.Field("nil operand"),
		)
		return nil, fmt.Errorf("%w: %s with nil operand", ErrUnsupportedOperand, op)
	}

	// Native attempt runs in its own failure boundary: a panic is recorded
	// in the metadata side channel and treated as no native result.
	res, ok := func() (res any, ok bool) {
		defer func() {
			if p := recover(); p != nil {
				v.meta.lastErr = fmt.Errorf("native %s: %v", op, p)
				res, ok = nil, false
			}
		}()
		return native(v.v, o.v)
	}()

	if !v.semantic && !o.semantic {
		if !ok {
			capitan.Error(ctx, DispatchFailed,
				OperationKey.Field(op),
				ErrorKey.Field("no native resolution"),
			)
			return nil, fmt.Errorf("%w: %s on %T and %T", ErrUnsupportedOperation, op, v.v, o.v)
		}
		capitan.Info(ctx, DispatchNative,
			OperationKey.Field(op),
			OutputKey.Field(render(res)),
		)
		return v.derive(res), nil
	}

	if v.noEngine || o.noEngine {
		return nil, fmt.Errorf("%w: %s", ErrBackendDisabled, op)
	}

	reg := v.reg
	if reg == nil {
		reg = o.reg
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: no registry attached for %s", ErrNoEngine, op)
	}

	capitan.Info(ctx, DispatchSemantic,
		OperationKey.Field(op),
		InputKey.Field(v.String()),
	)

	processed, err := reg.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	out := v.derive(parse(processed.Response))
	out.meta.raw = processed.Raw
	return out, nil
}

// Equal reports semantic or native equality with the operand. In native
// mode the answer follows ordinary Go equality; in semantic mode the
// engine judges equivalence and the result wraps a boolean.
func (v *Value) Equal(ctx context.Context, other any) (*Value, error) {
	o := v.coerce(other)
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "equal",
		Instruction: "Decide whether the two values are semantically equivalent. Answer with exactly 'true' or 'false'.",
		Input:       v.String(),
		Context:     o.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	return v.dispatch(ctx, "equal", other, nativeEqual, req, func(resp string) any {
		return parseAffirmative(resp)
	})
}

// NotEqual is the negation of Equal.
func (v *Value) NotEqual(ctx context.Context, other any) (*Value, error) {
	eq, err := v.Equal(ctx, other)
	if err != nil {
		return nil, err
	}
	return v.derive(!eq.Bool()), nil
}

// Compare orders the value against the operand. Native ordering applies
// to numbers and text; semantic mode asks the engine to judge the
// relation (e.g. which of two events came first).
func (v *Value) Compare(ctx context.Context, op Op, other any) (*Value, error) {
	o := v.coerce(other)
	req := &Request{
		Capability: CapabilityNeurosymbolic,
		Op:         "compare " + string(op),
		Instruction: fmt.Sprintf(
			"Decide whether the relation 'A %s B' holds between the two values. Answer with exactly 'true' or 'false'.", op),
		Input:       v.String(),
		Context:     o.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	native := func(a, b any) (any, bool) { return nativeCompare(op, a, b) }
	return v.dispatch(ctx, "compare "+string(op), other, native, req, func(resp string) any {
		return parseAffirmative(resp)
	})
}

// Contains reports whether the value contains the operand: substring,
// element, or map key natively; semantic inclusion via the engine.
func (v *Value) Contains(ctx context.Context, other any) (*Value, error) {
	o := v.coerce(other)
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "contains",
		Instruction: "Decide whether the first value contains or semantically includes the second. Answer with exactly 'true' or 'false'.",
		Input:       v.String(),
		Context:     o.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	return v.dispatch(ctx, "contains", other, nativeContains, req, func(resp string) any {
		return parseAffirmative(resp)
	})
}

// Combine fuses the value with the operand: native addition for numbers,
// concatenation for matching containers, or an engine-mediated merge of
// the two contents in semantic mode.
func (v *Value) Combine(ctx context.Context, other any) (*Value, error) {
	o := v.coerce(other)
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "combine",
		Instruction: "Combine the two values into a single coherent result, preserving the meaning of both.",
		Input:       v.String(),
		Context:     o.String(),
		Temperature: DefaultTemperatureCreative,
	}
	return v.dispatch(ctx, "combine", other, nativeCombine, req, func(resp string) any {
		return resp
	})
}

// Concat joins the textual renderings of the value and the operand. It is
// always native; no engine is consulted.
func (v *Value) Concat(other any) *Value {
	o := v.coerce(other)
	return v.derive(v.String() + o.String())
}

// Remove strips the operand from the value: native text replacement or
// element removal, or an engine-mediated removal of the operand's meaning
// in semantic mode.
func (v *Value) Remove(ctx context.Context, other any) (*Value, error) {
	o := v.coerce(other)
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "remove",
		Instruction: "Remove every occurrence or mention of the second value from the first. Return only the remaining content.",
		Input:       v.String(),
		Context:     o.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	return v.dispatch(ctx, "remove", other, nativeRemove, req, func(resp string) any {
		return resp
	})
}

// GetItem indexes into the payload. Native container indexing runs first;
// only in semantic mode does a failed native lookup forward to the engine
// with the key serialized as text, and the reply is parsed back into the
// container's shape where possible.
func (v *Value) GetItem(ctx context.Context, key any) (*Value, error) {
	if res, ok := nativeGetItem(v.v, key); ok {
		return v.derive(res), nil
	}
	if !v.semantic {
		return nil, fmt.Errorf("%w: getitem %v on %T", ErrUnsupportedOperation, key, v.v)
	}
	if v.noEngine {
		return nil, fmt.Errorf("%w: getitem", ErrBackendDisabled)
	}
	if v.reg == nil {
		return nil, fmt.Errorf("%w: no registry attached for getitem", ErrNoEngine)
	}
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "getitem",
		Instruction: fmt.Sprintf("Extract the entry matching the key %q from the data. Return only the entry's value.", render(key)),
		Input:       v.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	processed, err := v.reg.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	out := v.derive(recoverStructure(processed.Response))
	out.meta.raw = processed.Raw
	return out, nil
}

// SetItem assigns into the payload in place. Native assignment runs
// first; in semantic mode a failed assignment asks the engine to rewrite
// the data with the entry set, and replaces the payload with the parsed
// reply.
func (v *Value) SetItem(ctx context.Context, key, val any) error {
	if ok := nativeSetItem(v.v, key, val); ok {
		return nil
	}
	if !v.semantic {
		return fmt.Errorf("%w: setitem %v on %T", ErrUnsupportedOperation, key, v.v)
	}
	if v.noEngine {
		return fmt.Errorf("%w: setitem", ErrBackendDisabled)
	}
	if v.reg == nil {
		return fmt.Errorf("%w: no registry attached for setitem", ErrNoEngine)
	}
	req := &Request{
		Capability: CapabilityNeurosymbolic,
		Op:         "setitem",
		Instruction: fmt.Sprintf(
			"Rewrite the data so the entry for key %q holds the value %q. Return the full rewritten data in its original format.",
			render(key), render(val)),
		Input:       v.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	processed, err := v.reg.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	v.v = recoverStructure(processed.Response)
	v.meta.raw = processed.Raw
	return nil
}

// DelItem deletes an entry from the payload in place, with the same
// native-first, semantic-fallback contract as SetItem.
func (v *Value) DelItem(ctx context.Context, key any) error {
	if ok := nativeDelItem(v, key); ok {
		return nil
	}
	if !v.semantic {
		return fmt.Errorf("%w: delitem %v on %T", ErrUnsupportedOperation, key, v.v)
	}
	if v.noEngine {
		return fmt.Errorf("%w: delitem", ErrBackendDisabled)
	}
	if v.reg == nil {
		return fmt.Errorf("%w: no registry attached for delitem", ErrNoEngine)
	}
	req := &Request{
		Capability: CapabilityNeurosymbolic,
		Op:         "delitem",
		Instruction: fmt.Sprintf(
			"Rewrite the data with the entry for key %q removed. Return the full rewritten data in its original format.", render(key)),
		Input:       v.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	processed, err := v.reg.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	v.v = recoverStructure(processed.Response)
	v.meta.raw = processed.Raw
	return nil
}

// parseAffirmative reads a backend reply as a yes/no verdict. It is
// tolerant of casing, surrounding prose punctuation and common synonyms.
func parseAffirmative(resp string) bool {
	s := strings.ToLower(strings.TrimSpace(resp))
	s = strings.Trim(s, ".!'\"` ")
	for _, prefix := range []string{"true", "yes", "pass", "1"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func nativeEqual(a, b any) (any, bool) {
	if a == nil || b == nil {
		return a == nil && b == nil, true
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb, true
		}
		return false, true
	}
	return reflect.DeepEqual(a, b), true
}

func nativeCompare(op Op, a, b any) (any, bool) {
	var cmp int
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return nil, false
		}
		switch {
		case fa < fb:
			cmp = -1
		case fa > fb:
			cmp = 1
		}
	} else if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return nil, false
		}
		cmp = strings.Compare(sa, sb)
	} else {
		return nil, false
	}

	switch op {
	case OpGt:
		return cmp > 0, true
	case OpGe:
		return cmp >= 0, true
	case OpLt:
		return cmp < 0, true
	case OpLe:
		return cmp <= 0, true
	default:
		return nil, false
	}
}

func nativeContains(a, b any) (any, bool) {
	switch c := a.(type) {
	case string:
		if s, ok := b.(string); ok {
			return strings.Contains(c, s), true
		}
		return strings.Contains(c, render(b)), true
	case []any:
		for _, e := range c {
			if eq, _ := nativeEqual(e, b); eq == true {
				return true, true
			}
		}
		return false, true
	case map[string]any:
		_, ok := c[render(b)]
		return ok, true
	default:
		return nil, false
	}
}

func nativeCombine(a, b any) (any, bool) {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa + fb, true
		}
		return nil, false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa + sb, true
		}
		return nil, false
	}
	if la, ok := a.([]any); ok {
		if lb, ok := b.([]any); ok {
			out := make([]any, 0, len(la)+len(lb))
			out = append(out, la...)
			return append(out, lb...), true
		}
		return append(append([]any{}, la...), b), true
	}
	return nil, false
}

func nativeRemove(a, b any) (any, bool) {
	switch c := a.(type) {
	case string:
		return strings.ReplaceAll(c, render(b), ""), true
	case []any:
		out := make([]any, 0, len(c))
		for _, e := range c {
			if eq, _ := nativeEqual(e, b); eq == true {
				continue
			}
			out = append(out, e)
		}
		return out, true
	default:
		return nil, false
	}
}

func nativeGetItem(container, key any) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		if k, ok := key.(string); ok {
			v, ok := c[k]
			return v, ok
		}
		return nil, false
	case []any:
		if i, ok := asIndex(key); ok && i >= 0 && i < len(c) {
			return c[i], true
		}
		return nil, false
	case string:
		runes := []rune(c)
		if i, ok := asIndex(key); ok && i >= 0 && i < len(runes) {
			return string(runes[i]), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func nativeSetItem(container, key, val any) bool {
	switch c := container.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return false
		}
		c[k] = val
		return true
	case []any:
		i, ok := asIndex(key)
		if !ok || i < 0 || i >= len(c) {
			return false
		}
		c[i] = val
		return true
	default:
		return false
	}
}

func nativeDelItem(v *Value, key any) bool {
	switch c := v.v.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return false
		}
		if _, present := c[k]; !present {
			return false
		}
		delete(c, k)
		return true
	case []any:
		i, ok := asIndex(key)
		if !ok || i < 0 || i >= len(c) {
			return false
		}
		v.v = append(append([]any{}, c[:i]...), c[i+1:]...)
		return true
	default:
		return false
	}
}

func asIndex(key any) (int, bool) {
	f, ok := asFloat(key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
