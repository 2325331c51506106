package sema

import (
	"context"
	"fmt"
	"iter"

	"github.com/zoobzio/capitan"
)

// Previewer is implemented by operations that can render their full
// request without committing side effects. Stream uses the preview to
// estimate whether the input fits the backend's context window.
type Previewer interface {
	Preview(ctx context.Context, v *Value) (string, error)
}

// Stream splits an oversized input across multiple backend calls. It
// previews the operation on the whole input, and if the rendering exceeds
// the backend's context window, tokenizes the input, slices it into
// contiguous windows sized by the budgeted share (ratio of the window)
// and lazily yields one operation result per window, in input order.
//
// Each yielded result comes from an independent call with no cross-chunk
// state. The sequence is finite and forward-only; re-iterating re-invokes
// the backend. A chunk that still exceeds the backend's hard ceiling fails
// that chunk and the failure is yielded to the caller; no retry happens
// here and iteration moves on to the remaining chunks.
func Stream(ctx context.Context, operation Operation, input *Value, ratio float64) iter.Seq2[*Value, error] {
	return func(yield func(*Value, error) bool) {
		reg := input.Registry()
		if reg == nil {
			yield(nil, fmt.Errorf("%w: no registry attached for stream", ErrNoEngine))
			return
		}
		engine, err := reg.Get(CapabilityNeurosymbolic)
		if err != nil {
			yield(nil, err)
			return
		}
		tokenizer, ok := engine.(Tokenizer)
		if !ok {
			yield(nil, fmt.Errorf("engine %q does not expose a tokenizer", engine.ID()))
			return
		}
		sizer, ok := engine.(ContextSizer)
		if !ok {
			yield(nil, fmt.Errorf("engine %q does not report a context window", engine.ID()))
			return
		}

		maxTokens := sizer.MaxContextTokens()
		maxChunk := int(float64(maxTokens) * ratio)
		if maxChunk < 1 {
			yield(nil, fmt.Errorf("token budget ratio %v leaves no room in a %d token window", ratio, maxTokens))
			return
		}

		preview, err := previewText(ctx, operation, input)
		if err != nil {
			yield(nil, err)
			return
		}
		previewTokens := len(tokenizer.Encode(preview))

		if previewTokens <= maxTokens {
			yield(operation.Apply(ctx, input))
			return
		}

		tokens := tokenizer.Encode(input.String())
		splits := (previewTokens + maxChunk - 1) / maxChunk
		window := (len(tokens) + splits - 1) / splits

		for i := 0; i < splits; i++ {
			lo := i * window
			if lo >= len(tokens) {
				return
			}
			hi := lo + window
			if hi > len(tokens) {
				hi = len(tokens)
			}
			chunk := input.derive(tokenizer.Decode(tokens[lo:hi]))

			capitan.Info(ctx, StreamChunk,
				ChunkIndexKey.Field(i),
				ChunkCountKey.Field(splits),
				OperationKey.Field("stream"),
			)

			if !yield(operation.Apply(ctx, chunk)) {
				return
			}
		}
	}
}

// previewText renders the operation's request on the whole input without
// side effects. Operations that cannot preview are estimated by the
// input's own rendering.
func previewText(ctx context.Context, operation Operation, input *Value) (string, error) {
	if p, ok := operation.(Previewer); ok {
		return p.Preview(ctx, input)
	}
	return input.String(), nil
}
