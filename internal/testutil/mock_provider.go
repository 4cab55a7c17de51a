// Package testutil provides shared test helpers, mocks, and fixtures for
// SafePost tests.
package testutil

import (
	"context"
	"sync"

	"github.com/Aafreen2203/SafePostAI/internal/llm"
)

// MockProvider implements llm.Provider without network calls. Content is
// returned verbatim; set Err to simulate a provider failure.
type MockProvider struct {
	ProviderName string
	Content      string
	Err          error

	mu       sync.Mutex
	requests []*llm.Request
}

// Name returns ProviderName, or "mock".
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Generate records the request and returns the canned answer.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.Response{
		Content:      m.Content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.requests...)
}
