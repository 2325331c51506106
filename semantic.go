package sema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CallOption adjusts a single engine call.
type CallOption func(*Request)

// WithSeed fixes the random seed for the call.
func WithSeed(seed int64) CallOption {
	return func(req *Request) { req.Seed = seed }
}

// WithTemperature overrides the call temperature.
func WithTemperature(t float32) CallOption {
	return func(req *Request) { req.Temperature = t }
}

// WithPromptContext attaches additional context text to the call.
func WithPromptContext(text string) CallOption {
	return func(req *Request) { req.Context = text }
}

// WithPayload attaches a diagnostic payload to the call.
func WithPayload(payload string) CallOption {
	return func(req *Request) { req.Payload = payload }
}

// AsPreview marks the call render-only: the engine prepares the request
// but never forwards it to the backend.
func AsPreview() CallOption {
	return func(req *Request) { req.Preview = true }
}

// call forwards a request through the value's registry and wraps the
// reply. The semantic flag is not consulted here: these primitives are
// engine calls by definition.
func (v *Value) call(ctx context.Context, req *Request, opts ...CallOption) (*Value, error) {
	if v.noEngine {
		return nil, fmt.Errorf("%w: %s", ErrBackendDisabled, req.Op)
	}
	if v.reg == nil {
		return nil, fmt.Errorf("%w: no registry attached for %s", ErrNoEngine, req.Op)
	}
	for _, opt := range opts {
		opt(req)
	}
	processed, err := v.reg.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Preview {
		return v.derive(processed.Prepared), nil
	}
	out := v.derive(processed.Response)
	out.meta.raw = processed.Raw
	return out, nil
}

// Interpret asks the engine to transform the value's content following a
// free-form instruction.
func (v *Value) Interpret(ctx context.Context, instruction string, opts ...CallOption) (*Value, error) {
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "interpret",
		Instruction: instruction,
		Input:       v.String(),
		Temperature: DefaultTemperatureCreative,
	}
	return v.call(ctx, req, opts...)
}

// Query answers a question about the value's content.
func (v *Value) Query(ctx context.Context, question string, opts ...CallOption) (*Value, error) {
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "query",
		Instruction: question,
		Input:       v.String(),
		Temperature: DefaultTemperatureDeterministic,
	}
	return v.call(ctx, req, opts...)
}

// Analyze asks the engine to diagnose a failure in the context of the
// value's content. The repair loops use it with the question "What is the
// issue in the given code or expression?".
func (v *Value) Analyze(ctx context.Context, cause error, question string, opts ...CallOption) (*Value, error) {
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "analyze",
		Instruction: question,
		Input:       v.String(),
		Payload:     "[EXCEPTION]\n" + cause.Error(),
		Temperature: DefaultTemperatureDeterministic,
	}
	return v.call(ctx, req, opts...)
}

// Correct asks the engine to produce a corrected version of the value's
// content given a diagnostic payload assembled by the caller.
func (v *Value) Correct(ctx context.Context, instruction, payload string, opts ...CallOption) (*Value, error) {
	req := &Request{
		Capability:  CapabilityNeurosymbolic,
		Op:          "correct",
		Instruction: instruction,
		Input:       v.String(),
		Payload:     payload,
		Temperature: TemperatureZero,
	}
	return v.call(ctx, req, opts...)
}

// Embed computes an embedding vector for the value's content via the
// embedding engine. The result is not cached; use Embedding for the
// memoized form.
func (v *Value) Embed(ctx context.Context) ([]float64, error) {
	if v.noEngine {
		return nil, fmt.Errorf("%w: embed", ErrBackendDisabled)
	}
	if v.reg == nil {
		return nil, fmt.Errorf("%w: no registry attached for embed", ErrNoEngine)
	}
	req := &Request{
		Capability: CapabilityEmbedding,
		Op:         "embed",
		Input:      v.String(),
	}
	processed, err := v.reg.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	vec, err := parseEmbedding(processed)
	if err != nil {
		return nil, err
	}
	v.meta.raw = processed.Raw
	return vec, nil
}

// Embedding returns the value's embedding, computing it at most once.
// A payload that is already a numeric vector is converted directly
// without an engine call.
func (v *Value) Embedding(ctx context.Context) ([]float64, error) {
	if v.meta.embedding != nil {
		return v.meta.embedding, nil
	}
	if vec, ok := numericVector(v.v); ok {
		v.meta.embedding = vec
		return vec, nil
	}
	vec, err := v.Embed(ctx)
	if err != nil {
		return nil, err
	}
	v.meta.embedding = vec
	return vec, nil
}

// Similarity embeds the value and the operand and measures them with the
// named similarity metric.
func (v *Value) Similarity(ctx context.Context, other any, metric SimilarityMetric, opts ...MeasureOption) (float64, error) {
	a, err := v.Embedding(ctx)
	if err != nil {
		return 0, err
	}
	b, err := v.coerce(other).Embedding(ctx)
	if err != nil {
		return 0, err
	}
	return SimilarityBy(metric, a, b, opts...)
}

// Distance embeds the value and the operand and measures them with the
// named distance kernel.
func (v *Value) Distance(ctx context.Context, other any, kernel DistanceKernel, opts ...MeasureOption) (float64, error) {
	a, err := v.Embedding(ctx)
	if err != nil {
		return 0, err
	}
	b, err := v.coerce(other).Embedding(ctx)
	if err != nil {
		return 0, err
	}
	return DistanceBy(kernel, a, b, opts...)
}

// parseEmbedding extracts a float vector from an embedding response. The
// raw response object is honored first; otherwise the text output must be
// a JSON number array (possibly nested one level).
func parseEmbedding(req *Request) ([]float64, error) {
	switch raw := req.Raw.(type) {
	case []float64:
		return raw, nil
	case [][]float64:
		if len(raw) > 0 {
			return raw[0], nil
		}
	}
	text := strings.TrimSpace(req.Response)
	var nested [][]float64
	if err := json.Unmarshal([]byte(text), &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []float64
	if err := json.Unmarshal([]byte(text), &flat); err == nil {
		return flat, nil
	}
	return nil, &UnexpectedResponseShapeError{Err: fmt.Errorf("embedding response is not a number vector: %.80q", text)}
}

// numericVector converts an already-numeric payload into a float vector.
func numericVector(payload any) ([]float64, bool) {
	switch p := payload.(type) {
	case []float64:
		return p, true
	case []float32:
		out := make([]float64, len(p))
		for i, f := range p {
			out[i] = float64(f)
		}
		return out, true
	case []int:
		out := make([]float64, len(p))
		for i, n := range p {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, len(p))
		for i, e := range p {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
