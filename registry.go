package sema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Registry resolves engines by declared capability. It is an explicit
// dependency: construct one at process start and hand it to every Value
// that needs adapter resolution. There is no ambient global registry.
//
// A Registry is safe for concurrent use after registration is complete.
type Registry struct {
	mu        sync.RWMutex
	engines   map[string]Engine
	pipelines map[string]pipz.Chainable[*Request]
	tracker   *Tracker
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithTracker attaches a usage tracker; every successful engine call is
// recorded into it.
func WithTracker(t *Tracker) RegistryOption {
	return func(r *Registry) { r.tracker = t }
}

// NewRegistry creates an empty engine registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		engines:   make(map[string]Engine),
		pipelines: make(map[string]pipz.Chainable[*Request]),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newTerminal creates the terminal processor that prepares and forwards a
// request to the engine. All reliability options wrap this stage.
func newTerminal(engine Engine) pipz.Chainable[*Request] {
	return pipz.Apply(pipz.NewIdentity("engine-call", ""), func(ctx context.Context, req *Request) (*Request, error) {
		if err := engine.Prepare(req); err != nil {
			return req, err
		}
		resp, err := engine.Forward(ctx, req)
		if err != nil {
			return req, err
		}
		req.Response = resp.Output
		req.Raw = resp.Raw
		usage := resp.Usage
		req.Usage = &usage
		return req, nil
	})
}

// Register binds an engine to a capability id, wrapping its call path with
// the given reliability options. Registering a capability twice replaces
// the previous binding.
func (r *Registry) Register(capability string, engine Engine, opts ...Option) {
	var pipeline pipz.Chainable[*Request] = newTerminal(engine)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[capability] = engine
	r.pipelines[capability] = pipeline
}

// Get returns the engine registered for a capability.
func (r *Registry) Get(capability string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[capability]
	if !ok {
		return nil, fmt.Errorf("%w for capability %q (registered: %v)", ErrNoEngine, capability, r.capabilities())
	}
	return engine, nil
}

// Capabilities lists the registered capability ids in sorted order.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilities()
}

func (r *Registry) capabilities() []string {
	caps := make([]string, 0, len(r.engines))
	for c := range r.engines {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

// Command applies runtime options to the engines bound to the given
// capabilities. An empty capability list addresses every engine.
func (r *Registry) Command(opts Options, capabilities ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(capabilities) == 0 {
		capabilities = r.capabilities()
	}
	for _, c := range capabilities {
		engine, ok := r.engines[c]
		if !ok {
			return fmt.Errorf("%w for capability %q", ErrNoEngine, c)
		}
		engine.Command(opts)
	}
	return nil
}

// Tracker returns the attached usage tracker, or nil.
func (r *Registry) Tracker() *Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracker
}

// Dispatch sends a request through the capability's pipeline and returns
// the completed request. Preview requests are only rendered, never sent.
// Failures outside any retry loop propagate unmodified, wrapped in a
// BackendCallError identifying the engine.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (*Request, error) {
	r.mu.RLock()
	engine, ok := r.engines[req.Capability]
	pipeline := r.pipelines[req.Capability]
	tracker := r.tracker
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for capability %q (registered: %v)", ErrNoEngine, req.Capability, r.Capabilities())
	}

	req.RequestID = uuid.New().String()
	req.EngineID = engine.ID()

	if req.Preview {
		if err := engine.Prepare(req); err != nil {
			return nil, &BackendCallError{EngineID: engine.ID(), Op: req.Op, Err: err}
		}
		return req, nil
	}

	capitan.Info(ctx, EngineCallStarted,
		RequestIDKey.Field(req.RequestID),
		CapabilityKey.Field(req.Capability),
		OperationKey.Field(req.Op),
		EngineKey.Field(req.EngineID),
	)

	processed, err := pipeline.Process(ctx, req)
	if err != nil {
		capitan.Error(ctx, EngineCallFailed,
			RequestIDKey.Field(req.RequestID),
			CapabilityKey.Field(req.Capability),
			OperationKey.Field(req.Op),
			EngineKey.Field(req.EngineID),
			ErrorKey.Field(err.Error()),
		)
		return nil, &BackendCallError{EngineID: engine.ID(), Op: req.Op, Err: err}
	}

	if tracker != nil && processed.Usage != nil {
		tracker.Record(CallRecord{
			Capability: req.Capability,
			EngineID:   req.EngineID,
			Op:         req.Op,
			Usage:      *processed.Usage,
			Raw:        processed.Raw,
		})
	}

	usage := processed.Usage
	if usage == nil {
		usage = &TokenUsage{}
	}
	capitan.Info(ctx, EngineCallDone,
		RequestIDKey.Field(req.RequestID),
		CapabilityKey.Field(req.Capability),
		OperationKey.Field(req.Op),
		EngineKey.Field(req.EngineID),
		ResponseKey.Field(processed.Response),
		PromptTokensKey.Field(usage.Prompt),
		CompletionTokensKey.Field(usage.Completion),
		TotalTokensKey.Field(usage.Total),
	)

	return processed, nil
}
