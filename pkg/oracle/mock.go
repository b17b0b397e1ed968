package oracle

import (
	"context"
	"sync"
)

// MockCall records one call made to a MockBackend.
type MockCall struct {
	System string
	Prompt string
}

// MockHandler produces the response for one call.
type MockHandler func(ctx context.Context, system, prompt string) (string, error)

// MockBackend is a scripted Backend for tests and dry runs.
type MockBackend struct {
	mu      sync.Mutex
	handler MockHandler
	calls   []MockCall
}

// NewMockBackend returns a backend answering every call with handler.
func NewMockBackend(handler MockHandler) *MockBackend {
	return &MockBackend{handler: handler}
}

// NewMockSequence returns a backend answering calls with responses in order.
// An empty response, or a call past the end of the list, fails.
func NewMockSequence(responses ...string) *MockBackend {
	var mu sync.Mutex
	next := 0
	return NewMockBackend(func(context.Context, string, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(responses) {
			return "", ErrEmptyResponse
		}
		r := responses[next]
		next++
		if r == "" {
			return "", ErrEmptyResponse
		}
		return r, nil
	})
}

// Name implements Backend.
func (m *MockBackend) Name() string { return "mock" }

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{System: system, Prompt: prompt})
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return "", ErrEmptyResponse
	}
	return h(ctx, system, prompt)
}

// Calls returns a copy of the recorded calls.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
