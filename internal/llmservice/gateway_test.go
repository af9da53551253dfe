package llmservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

// sequenceLister returns its lists in turn, repeating the last one
type sequenceLister struct {
	mu    sync.Mutex
	lists [][]string
	err   error
}

func (l *sequenceLister) ListModels(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := l.lists[0]
	if len(l.lists) > 1 {
		l.lists = l.lists[1:]
	}
	return out, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want errorKind
	}{
		{"The model `llama2` has been decommissioned", errModel},
		{"404 Not Found", errModel},
		{"invalid_request_error: bad field", errModel},
		{"unsupported parameter", errModel},
		{"rate_limit_exceeded", errRate},
		{"Request too large for tier", errRate},
		{"max tokens per minute reached", errRate},
		{"connection refused", errFatal},
		{"context deadline exceeded", errFatal},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestChooseModel(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		preferred string
		want      string
	}{
		{"preferred served", []string{"gemma-7b", "llama-3.1-8b-instant"}, "llama-3.1-8b-instant", "llama-3.1-8b-instant"},
		{"family order wins over list order", []string{"gemma-7b", "mixtral-8x7b", "llama3-70b"}, "gone", "llama3-70b"},
		{"first family match", []string{"whisper", "gpt-oss-20b"}, "", "gpt-oss-20b"},
		{"no family match", []string{"whisper", "distil"}, "gone", "whisper"},
		{"empty list keeps preferred", nil, "gone", "gone"},
		{"family match is case sensitive", []string{"LLAMA-3", "tiny"}, "", "LLAMA-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseModel(tt.names, tt.preferred, DefaultModelFamilies); got != tt.want {
				t.Errorf("chooseModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompleteRetriesWithExponentialBackoff(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Err: errors.New("rate_limit_exceeded")},
		MockResponse{Err: errors.New("rate_limit_exceeded")},
		MockResponse{Text: "  done  "},
	)
	var sleeps recordedSleeps
	g := NewGateway(mock, "m", WithRetry(2, 100*time.Millisecond), WithSleep(sleeps.sleep))

	c := g.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if !c.OK() || c.Text != "done" {
		t.Fatalf("completion = %+v", c)
	}
	if c.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", c.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeps.delays, want)
	}
	for i := range want {
		if sleeps.delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, sleeps.delays[i], want[i])
		}
	}
}

func TestCompleteNoSleepAfterLastAttempt(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Err: errors.New("rate_limit_exceeded")},
		MockResponse{Err: errors.New("rate_limit_exceeded")},
	)
	var sleeps recordedSleeps
	g := NewGateway(mock, "m", WithRetry(1, time.Second), WithSleep(sleeps.sleep))

	c := g.Complete(context.Background(), Request{Prompt: "p"})
	if c.OK() || c.Err == nil {
		t.Fatalf("expected failure, got %+v", c)
	}
	if c.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", c.Attempts)
	}
	if len(sleeps.delays) != 1 {
		t.Errorf("delays = %v, want one", sleeps.delays)
	}
}

func TestCompleteFatalErrorFailsFast(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Err: errors.New("connection refused")},
		MockResponse{Text: "never"},
	)
	var sleeps recordedSleeps
	g := NewGateway(mock, "m", WithRetry(3, time.Second), WithSleep(sleeps.sleep))

	c := g.Complete(context.Background(), Request{Prompt: "p"})
	if c.Attempts != 1 || c.Text != "" || c.Err == nil {
		t.Errorf("completion = %+v", c)
	}
	if len(mock.Calls()) != 1 || len(sleeps.delays) != 0 {
		t.Errorf("calls = %d, sleeps = %v", len(mock.Calls()), sleeps.delays)
	}
}

func TestCompleteRepicksModel(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Err: errors.New("model old-model has been decommissioned")},
		MockResponse{Text: "hello"},
	)
	lister := &sequenceLister{lists: [][]string{{"old-model"}, {"whisper", "mixtral-8x7b"}}}
	var sleeps recordedSleeps
	g := NewGateway(mock, "old-model",
		WithModelLister(lister),
		WithRetry(1, 50*time.Millisecond),
		WithSleep(sleeps.sleep),
	)

	c := g.Complete(context.Background(), Request{Prompt: "p"})
	if c.Text != "hello" || c.Model != "mixtral-8x7b" {
		t.Fatalf("completion = %+v", c)
	}
	calls := mock.Calls()
	if calls[0].Model != "old-model" || calls[1].Model != "mixtral-8x7b" {
		t.Errorf("models = %q, %q", calls[0].Model, calls[1].Model)
	}
	if len(sleeps.delays) != 1 || sleeps.delays[0] != 50*time.Millisecond {
		t.Errorf("delays = %v", sleeps.delays)
	}
}

func TestPickModelListingError(t *testing.T) {
	g := NewGateway(NewMockClient(), "pref", WithModelLister(&sequenceLister{err: errors.New("down")}))
	if got := g.PickModel(context.Background(), "pref"); got != "pref" {
		t.Errorf("PickModel() = %q, want pref", got)
	}
}

func TestCallReturnsEmptyOnFailure(t *testing.T) {
	g := NewGateway(NewMockClient(MockResponse{Err: errors.New("boom")}), "m")
	if got := g.Call(context.Background(), "p", 10, 0); got != "" {
		t.Errorf("Call() = %q, want empty", got)
	}
}

func TestCompletePassesOptions(t *testing.T) {
	mock := NewMockClient(MockResponse{Text: "x"})
	g := NewGateway(mock, "m")
	g.Call(context.Background(), "the prompt", 256, 0.7)

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	got := calls[0]
	if got.Prompt != "the prompt" || got.MaxTokens != 256 || got.Temperature != 0.7 || got.Model != "m" {
		t.Errorf("call = %+v", got)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	mock := NewMockClient(MockResponse{Text: "a"}, MockResponse{Text: "b"})
	g := NewGateway(mock, "m", WithRateLimit(1000, 1))
	for _, want := range []string{"a", "b"} {
		if got := g.Call(context.Background(), "p", 0, 0); got != want {
			t.Errorf("Call() = %q, want %q", got, want)
		}
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *llms.ContentResponse
		want string
	}{
		{"nil", nil, ""},
		{"no choices", &llms.ContentResponse{}, ""},
		{"trimmed", &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "\n hi \n"}}}, "hi"},
		{"skips blank", &llms.ContentResponse{Choices: []*llms.ContentChoice{nil, {Content: "  "}, {Content: "second"}}}, "second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.resp); got != tt.want {
				t.Errorf("extractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAIModelLister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gemma-7b","object":"model"},{"id":"llama-3.1-8b-instant","object":"model"}]}`))
	}))
	defer srv.Close()

	ids, err := NewOpenAIModelLister(srv.URL+"/v1", "Bearer secret").ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[1] != "llama-3.1-8b-instant" {
		t.Errorf("ids = %v", ids)
	}
}

func TestMockClientHandler(t *testing.T) {
	mock := NewMockHandler(func(prompt string) (string, error) { return "echo: " + prompt, nil })
	got, err := mock.Call(context.Background(), "hi")
	if err != nil || got != "echo: hi" {
		t.Errorf("Call() = %q, %v", got, err)
	}
	if p := mock.Prompts(); len(p) != 1 || p[0] != "hi" {
		t.Errorf("prompts = %v", p)
	}
}
