package llmservice

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrNoMockResponse is returned when a MockClient runs out of scripted responses
var ErrNoMockResponse = errors.New("mock: no response scripted")

// MockResponse is one scripted reply
type MockResponse struct {
	Text string
	Err  error
}

// MockCall records one request seen by a MockClient
type MockCall struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// MockClient is an llms.Model that replays scripted responses in order, or asks
// Handler when set. It is safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall

	// Handler answers every prompt when set; scripted responses are then ignored
	Handler func(prompt string) (string, error)
}

var _ llms.Model = (*MockClient)(nil)

// NewMockClient returns a client replaying responses in order
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

// NewMockHandler returns a client answering through fn
func NewMockHandler(fn func(prompt string) (string, error)) *MockClient {
	return &MockClient{Handler: fn}
}

// Push appends scripted responses
func (m *MockClient) Push(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

func (m *MockClient) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				prompt.WriteString(tc.Text)
			}
		}
	}

	text, err := m.next(MockCall{
		Prompt:      prompt.String(),
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *MockClient) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *MockClient) next(call MockCall) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	handler := m.Handler
	if handler != nil {
		m.mu.Unlock()
		return handler(call.Prompt)
	}
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return "", ErrNoMockResponse
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp.Text, resp.Err
}

// Calls returns a copy of the recorded requests
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Prompts returns the recorded prompts in call order
func (m *MockClient) Prompts() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Prompt
	}
	return out
}
