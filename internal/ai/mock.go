package ai

import (
	"context"
	"encoding/json"
	"sync"
)

// MockResponse is one canned answer of a MockProvider.
type MockResponse struct {
	Content string
	Err     error
}

// MockProvider replays canned responses in FIFO order and records requests.
type MockProvider struct {
	name string

	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

func NewMockProvider(name string, responses ...MockResponse) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{name: name, responses: responses}
}

// Generate returns the next canned response, or ErrProviderUnavailable once the queue is empty.
func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if len(m.responses) == 0 {
		return nil, &ErrProviderUnavailable{}
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	content := json.RawMessage(next.Content)
	if err := validateResponse(req.Schema, content); err != nil {
		return nil, err
	}
	return &Response{Content: content, Model: m.name, StopReason: "end"}, nil
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) AddResponse(r MockResponse) {
	m.mu.Lock()
	m.responses = append(m.responses, r)
	m.mu.Unlock()
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
