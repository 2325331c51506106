package sema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRegistryResolution(t *testing.T) {
	t.Run("registered capability resolves", func(t *testing.T) {
		reg := NewRegistry()
		engine := NewMockEngine("gpt")
		reg.Register(CapabilityNeurosymbolic, engine)

		got, err := reg.Get(CapabilityNeurosymbolic)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if got.ID() != "gpt" {
			t.Errorf("Get() = %q", got.ID())
		}
	})

	t.Run("unknown capability lists what is registered", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(CapabilityEmbedding, NewMockEmbeddingEngine("embed", nil))

		_, err := reg.Get(CapabilityNeurosymbolic)
		if !errors.Is(err, ErrNoEngine) {
			t.Fatalf("Get() error = %v, want ErrNoEngine", err)
		}
		if !strings.Contains(err.Error(), CapabilityEmbedding) {
			t.Errorf("error should list registered capabilities: %v", err)
		}
	})

	t.Run("capabilities sorted", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt"))
		reg.Register(CapabilityEmbedding, NewMockEmbeddingEngine("embed", nil))

		caps := reg.Capabilities()
		if len(caps) != 2 || caps[0] != CapabilityEmbedding || caps[1] != CapabilityNeurosymbolic {
			t.Errorf("Capabilities() = %v", caps)
		}
	})
}

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("populates response and usage", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt", WithMockResponse("four words of output")))

		req := &Request{Capability: CapabilityNeurosymbolic, Op: "interpret", Instruction: "count", Input: "data"}
		processed, err := reg.Dispatch(ctx, req)
		if err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
		if processed.Response != "four words of output" {
			t.Errorf("Response = %q", processed.Response)
		}
		if processed.Usage == nil || processed.Usage.Completion != 4 {
			t.Errorf("Usage = %+v", processed.Usage)
		}
		if processed.RequestID == "" || processed.EngineID != "gpt" {
			t.Errorf("metadata = %q/%q", processed.RequestID, processed.EngineID)
		}
	})

	t.Run("preview renders without forwarding", func(t *testing.T) {
		reg := NewRegistry()
		engine := NewMockEngine("gpt")
		reg.Register(CapabilityNeurosymbolic, engine)

		req := &Request{Capability: CapabilityNeurosymbolic, Op: "interpret", Instruction: "summarize", Input: "data", Preview: true}
		processed, err := reg.Dispatch(ctx, req)
		if err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
		if processed.Prepared == "" {
			t.Error("preview should populate the prepared input")
		}
		if engine.CallCount() != 0 {
			t.Errorf("preview forwarded %d calls", engine.CallCount())
		}
	})

	t.Run("failure identifies the engine", func(t *testing.T) {
		reg := NewRegistry()
		engine := NewMockEngine("gpt")
		engine.SetAvailable(false)
		reg.Register(CapabilityNeurosymbolic, engine)

		_, err := reg.Dispatch(ctx, &Request{Capability: CapabilityNeurosymbolic, Op: "interpret"})
		var callErr *BackendCallError
		if !errors.As(err, &callErr) {
			t.Fatalf("Dispatch() error = %v, want BackendCallError", err)
		}
		if callErr.EngineID != "gpt" || callErr.Op != "interpret" {
			t.Errorf("BackendCallError = %+v", callErr)
		}
	})
}

func TestRegistryCommand(t *testing.T) {
	reg := NewRegistry()
	engine := NewMockEngine("gpt")
	reg.Register(CapabilityNeurosymbolic, engine)

	if err := reg.Command(Options{OptionModel: "gpt-4o", OptionSeed: int64(7)}); err != nil {
		t.Fatalf("Command() error: %v", err)
	}
	opts := engine.LastOptions()
	if opts[OptionModel] != "gpt-4o" {
		t.Errorf("engine options = %v", opts)
	}

	if err := reg.Command(Options{}, "unknown"); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Command() error = %v, want ErrNoEngine", err)
	}
}

func TestRegistryReliabilityOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("retry recovers from transient failures", func(t *testing.T) {
		reg := NewRegistry()
		calls := 0
		engine := NewMockEngine("flaky", WithMockCallback(func(_ *Request) (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("transient failure %d", calls)
			}
			return "recovered", nil
		}))
		reg.Register(CapabilityNeurosymbolic, engine, WithRetry(3))

		processed, err := reg.Dispatch(ctx, &Request{Capability: CapabilityNeurosymbolic, Op: "interpret"})
		if err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
		if processed.Response != "recovered" {
			t.Errorf("Response = %q", processed.Response)
		}
		if calls != 3 {
			t.Errorf("engine called %d times, want 3", calls)
		}
	})

	t.Run("fallback engine takes over", func(t *testing.T) {
		reg := NewRegistry()
		primary := NewMockEngine("primary")
		primary.SetAvailable(false)
		fallback := NewMockEngine("backup", WithMockResponse("from backup"))
		reg.Register(CapabilityNeurosymbolic, primary, WithFallback(fallback))

		processed, err := reg.Dispatch(ctx, &Request{Capability: CapabilityNeurosymbolic, Op: "interpret"})
		if err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
		if processed.Response != "from backup" {
			t.Errorf("Response = %q", processed.Response)
		}
	})
}

func TestTrackerAccumulation(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker()
	reg := NewRegistry(WithTracker(tracker))
	reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt", WithMockResponse("two words")))

	for i := 0; i < 3; i++ {
		req := &Request{Capability: CapabilityNeurosymbolic, Op: "interpret", Instruction: "say two words"}
		if _, err := reg.Dispatch(ctx, req); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
	}

	if tracker.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tracker.Len())
	}
	total := tracker.Total()
	if total.Completion != 6 {
		t.Errorf("Total().Completion = %d, want 6", total.Completion)
	}
	if got := tracker.TotalFor(CapabilityEmbedding); got.Total != 0 {
		t.Errorf("TotalFor(embedding) = %+v, want zero", got)
	}

	last, ok := tracker.Last()
	if !ok || last.EngineID != "gpt" || last.Op != "interpret" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	tracker.Reset()
	if tracker.Len() != 0 {
		t.Errorf("Len() after Reset = %d", tracker.Len())
	}
}
