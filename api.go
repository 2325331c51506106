// Package sema provides a self-correcting execution layer between symbolic
// values and pluggable generative backends.
//
// Every operation on a Value resolves through exactly one of two paths: a
// native path using ordinary Go semantics, or a semantic path that forwards
// the operation to a registered Engine. When a backend produces output that
// does not satisfy a required shape or rule, bounded repair loops diagnose
// the failure and retry with a corrected request:
//
//   - Try: generic execute/diagnose/correct/retry state machine
//   - Validate: repairs malformed structured output against a Schema
//   - Constrain: repairs output against declarative length/semantic rules
//   - Stream: splits oversized inputs across multiple backend calls
//
// All engine calls run through composable pipz pipelines (retry, timeout,
// circuit breaker, rate limiting) and emit capitan hooks for observability.
//
// Basic usage:
//
//	reg := sema.NewRegistry()
//	reg.Register(sema.CapabilityNeurosymbolic, engine)
//	v := sema.New("the war of 1812", sema.WithRegistry(reg), sema.AsSemantic())
//	result, _ := v.Compare(ctx, sema.OpGt, "the lord of the rings")
package sema

import "context"

// Capability identifiers for engine resolution. Engines are resolved by
// declared capability, not by concrete type.
const (
	CapabilityNeurosymbolic = "neurosymbolic"
	CapabilityEmbedding     = "embedding"
)

// Recognized Command option keys.
const (
	// OptionModel selects the active model name.
	OptionModel = "model"

	// OptionSeed fixes the random seed for subsequent calls.
	OptionSeed = "seed"

	// OptionRemedy installs a fallback remedy func invoked on otherwise
	// unhandled backend errors. Value must be a RemedyFunc.
	OptionRemedy = "remedy"
)

// Options carries runtime reconfiguration for an Engine.
type Options map[string]any

// RemedyFunc is a fallback handler an engine may invoke when a call fails
// and no retry loop is composed around it. It receives the failed request
// and the error, and may return a substitute output.
type RemedyFunc func(req *Request, err error) (string, error)

// Engine is the uniform contract wrapping one generative backend.
// An engine turns a structured request into backend-specific calls and
// returns output plus metadata. Implementations decide transport, wire
// format and timeouts; a timeout surfaces as an ordinary Forward error.
type Engine interface {
	// ID returns the stable engine identifier (e.g. "gpt", "claude").
	ID() string

	// Command applies runtime reconfiguration options.
	Command(opts Options)

	// Prepare renders the request into the backend-specific input,
	// populating req.Prepared. It must not call the backend.
	Prepare(req *Request) error

	// Forward executes the prepared request against the backend.
	Forward(ctx context.Context, req *Request) (*Response, error)
}

// Tokenizer is the token boundary consumed by Stream. Engines that expose
// their tokenizer implement this alongside Engine.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// ContextSizer reports the backend's maximum context window in tokens.
type ContextSizer interface {
	MaxContextTokens() int
}

// TokenUsage contains token counts from a backend response.
type TokenUsage struct {
	Prompt     int // Tokens used by the prompt
	Completion int // Tokens used by the completion
	Total      int // Total tokens used
}

// Request flows through the pipz pipeline to an engine.
// It contains the operation, parameters, and response data.
type Request struct {
	// Input fields
	Capability  string  // Capability the request targets
	Op          string  // Operation tag (e.g. "compare >", "contains")
	Instruction string  // What the backend should do
	Input       string  // The main content to process
	Context     string  // Optional additional context
	Payload     string  // Optional diagnostic payload (retry loops)
	Seed        int64   // Fixed seed for deterministic repair attempts
	Temperature float32 // Temperature parameter
	Preview     bool    // Render only; no backend call

	// Metadata fields
	RequestID string // Unique identifier for this request
	EngineID  string // ID of the engine handling the request

	// Populated by Engine.Prepare
	Prepared string // Rendered backend-specific input

	// Output fields (populated by pipeline)
	Response string      // Raw text response from the backend
	Raw      any         // Raw backend response object for usage accounting
	Usage    *TokenUsage // Token usage from the backend response
	Err      error       // Any error that occurred during processing
}

// Response contains the output of one engine call.
type Response struct {
	Output   string         // The text output
	Raw      any            // Raw backend response for later usage accounting
	Usage    TokenUsage     // Token usage statistics
	Metadata map[string]any // Engine-specific metadata
}

// Default temperature constants. Lower values produce more deterministic
// outputs; repair loops run near zero so the same seed yields the same fix.
const (
	// TemperatureUnset indicates that no temperature has been set.
	// A zero-value float32 is also treated as unset.
	TemperatureUnset float32 = -1

	// TemperatureZero provides an explicitly near-zero temperature for
	// maximum determinism. Use this instead of 0.0 since zero is "unset".
	TemperatureZero float32 = 0.0001

	// DefaultTemperatureDeterministic is used for comparisons, containment
	// checks and structured repair.
	DefaultTemperatureDeterministic float32 = 0.1

	// DefaultTemperatureCreative is used for free-form interpretation.
	DefaultTemperatureCreative float32 = 0.3
)
