package sema

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockEngine simulates a generative backend for testing. It implements
// Engine plus the Tokenizer and ContextSizer boundaries with a trivial
// whitespace tokenizer, records every forwarded request, and resolves
// each call through a fixed response, a script, or a callback.
type MockEngine struct {
	mu        sync.Mutex
	id        string
	available bool
	response  string
	script    []string
	callback  func(req *Request) (string, error)
	maxTokens int
	calls     []Request
	lastOpts  Options
	vocab     map[string]int
	words     []string
}

// MockOption configures a MockEngine.
type MockOption func(*MockEngine)

// WithMockResponse makes every call return the same output.
func WithMockResponse(response string) MockOption {
	return func(m *MockEngine) { m.response = response }
}

// WithMockScript makes successive calls return successive entries; calls
// past the end repeat the last entry.
func WithMockScript(responses ...string) MockOption {
	return func(m *MockEngine) { m.script = responses }
}

// WithMockCallback generates each response from the incoming request.
func WithMockCallback(callback func(req *Request) (string, error)) MockOption {
	return func(m *MockEngine) { m.callback = callback }
}

// WithMockContextWindow sets the reported maximum context size.
func WithMockContextWindow(tokens int) MockOption {
	return func(m *MockEngine) { m.maxTokens = tokens }
}

// NewMockEngine creates a mock backend engine for testing.
func NewMockEngine(id string, opts ...MockOption) *MockEngine {
	m := &MockEngine{
		id:        id,
		available: true,
		response:  "mock response",
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockEngine) ID() string { return m.id }

// Command records the applied options for later inspection.
func (m *MockEngine) Command(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOpts = opts
}

// Prepare renders the request as a labeled prompt.
func (m *MockEngine) Prepare(req *Request) error {
	var sb strings.Builder
	sb.WriteString(req.Instruction)
	if req.Input != "" {
		sb.WriteString("\nInput: ")
		sb.WriteString(req.Input)
	}
	if req.Context != "" {
		sb.WriteString("\nContext: ")
		sb.WriteString(req.Context)
	}
	if req.Payload != "" {
		sb.WriteString("\n")
		sb.WriteString(req.Payload)
	}
	req.Prepared = sb.String()
	return nil
}

// Forward resolves the call without any backend.
func (m *MockEngine) Forward(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return nil, fmt.Errorf("engine %s is unavailable", m.id)
	}
	m.calls = append(m.calls, *req)

	output := m.response
	switch {
	case m.callback != nil:
		var err error
		output, err = m.callback(req)
		if err != nil {
			return nil, err
		}
	case len(m.script) > 0:
		i := len(m.calls) - 1
		if i >= len(m.script) {
			i = len(m.script) - 1
		}
		output = m.script[i]
	}

	prompt := len(m.encodeLocked(req.Prepared))
	completion := len(m.encodeLocked(output))
	return &Response{
		Output: output,
		Raw:    map[string]any{"model": m.id},
		Usage:  TokenUsage{Prompt: prompt, Completion: completion, Total: prompt + completion},
	}, nil
}

// SetAvailable toggles the simulated availability.
func (m *MockEngine) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Calls returns a copy of every forwarded request, in order.
func (m *MockEngine) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many requests were forwarded.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastOptions returns the options from the most recent Command.
func (m *MockEngine) LastOptions() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// Encode splits text into whitespace tokens identified by position in an
// internal vocabulary shared with Decode.
func (m *MockEngine) Encode(text string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encodeLocked(text)
}

func (m *MockEngine) encodeLocked(text string) []int {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	if m.vocab == nil {
		m.vocab = make(map[string]int)
	}
	for i, w := range words {
		id, ok := m.vocab[w]
		if !ok {
			id = len(m.words)
			m.vocab[w] = id
			m.words = append(m.words, w)
		}
		tokens[i] = id
	}
	return tokens
}

// Decode reassembles tokens into text.
func (m *MockEngine) Decode(tokens []int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t >= 0 && t < len(m.words) {
			words = append(words, m.words[t])
		}
	}
	return strings.Join(words, " ")
}

// MaxContextTokens reports the simulated context window.
func (m *MockEngine) MaxContextTokens() int { return m.maxTokens }

// MockEmbeddingEngine is a mock for the embedding capability. It returns
// a fixed vector, or one derived per input via the callback.
type MockEmbeddingEngine struct {
	mu       sync.Mutex
	id       string
	vector   []float64
	callback func(text string) []float64
	calls    int
}

// NewMockEmbeddingEngine creates a mock embedding backend returning the
// given vector for every input.
func NewMockEmbeddingEngine(id string, vector []float64) *MockEmbeddingEngine {
	return &MockEmbeddingEngine{id: id, vector: vector}
}

// NewMockEmbeddingEngineWithCallback derives each vector from the input.
func NewMockEmbeddingEngineWithCallback(id string, callback func(text string) []float64) *MockEmbeddingEngine {
	return &MockEmbeddingEngine{id: id, callback: callback}
}

func (m *MockEmbeddingEngine) ID() string        { return m.id }
func (m *MockEmbeddingEngine) Command(_ Options) {}

func (m *MockEmbeddingEngine) Prepare(req *Request) error {
	req.Prepared = req.Input
	return nil
}

func (m *MockEmbeddingEngine) Forward(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	vec := m.vector
	if m.callback != nil {
		vec = m.callback(req.Input)
	}
	return &Response{Raw: vec}, nil
}

// CallCount returns how many embeddings were computed.
func (m *MockEmbeddingEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
