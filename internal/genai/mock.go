package genai

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Each call pops the next queued
// response or error; when the script runs out the last entry repeats.
type MockClient struct {
	mu        sync.Mutex
	responses []*Response
	errors    []error
	calls     []Request
}

// NewMockClient creates an empty mock. Queue behavior with EnqueueText,
// EnqueueMedia, EnqueueError, or EnqueueResponse before use.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// EnqueueText queues a text-only response.
func (m *MockClient) EnqueueText(text string) *MockClient {
	return m.EnqueueResponse(&Response{Parts: []Part{TextPart(text)}})
}

// EnqueueMedia queues a response carrying inline media.
func (m *MockClient) EnqueueMedia(data []byte, mimeType string) *MockClient {
	return m.EnqueueResponse(&Response{Parts: []Part{{InlineData: data, MIMEType: mimeType}}})
}

// EnqueueResponse queues a successful response.
func (m *MockClient) EnqueueResponse(resp *Response) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errors = append(m.errors, nil)
	return m
}

// EnqueueError queues a failing call.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errors = append(m.errors, err)
	return m
}

func (m *MockClient) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return &Response{}, nil
	}

	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], m.errors[idx]
}

// Calls returns a copy of all recorded requests.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
