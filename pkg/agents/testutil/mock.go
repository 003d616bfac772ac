// Package testutil provides a programmable provider for agent and
// orchestrator tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/postpilot/postpilot/pkg/llm"
)

// MockProvider is a programmable llm.Provider. It returns queued responses
// or errors in order and records every call for verification.
type MockProvider struct {
	mu sync.Mutex

	// Responses is the queue of texts to return; each Request pops one.
	Responses []string

	// Errors is the parallel queue of errors; a non-nil entry is returned
	// instead of its response.
	Errors []error

	// Calls records every Request for verification.
	Calls []RequestCall

	current int
}

// RequestCall records a single call to Request.
type RequestCall struct {
	Messages []llm.Message
	Options  llm.RequestOptions
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// AddResponse queues a response text.
func (m *MockProvider) AddResponse(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, text)
	m.Errors = append(m.Errors, nil)
	return m
}

// AddError queues an error.
func (m *MockProvider) AddError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, "")
	m.Errors = append(m.Errors, err)
	return m
}

// Name implements llm.Provider.
func (m *MockProvider) Name() string { return "mock" }

// Request implements llm.Provider.
func (m *MockProvider) Request(ctx context.Context, messages []llm.Message, opts llm.RequestOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, RequestCall{Messages: messages, Options: opts})

	if m.current >= len(m.Responses) {
		return "", fmt.Errorf("mock: no more responses queued (call %d)", m.current)
	}

	idx := m.current
	m.current++

	if m.Errors[idx] != nil {
		return "", m.Errors[idx]
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of Request calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call, or nil if none were made.
func (m *MockProvider) LastCall() *RequestCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	call := m.Calls[len(m.Calls)-1]
	return &call
}

var _ llm.Provider = (*MockProvider)(nil)
