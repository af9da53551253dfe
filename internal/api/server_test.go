package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"campus-assistant/internal/config"
	"campus-assistant/internal/library"
	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/rag"
	"campus-assistant/internal/service"
	"campus-assistant/internal/store"

	"github.com/tmc/langchaingo/embeddings"
)

const quizJSON = `[{"question": "What do plants absorb?", "options": {"A": "Light", "B": "Sound", "C": "Heat", "D": "Wind"}, "correct_option": "A", "explanation": "Stated in the notes."}]`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.MaxFiles = 2
	cfg.Server.UploadDir = dir

	client := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s)), 1}
		}
		return out, nil
	})
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		t.Fatal(err)
	}
	llm := llmservice.NewMockHandler(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "different versions of the given user question"):
			return "", nil
		case strings.Contains(prompt, "strict exam setter"):
			return quizJSON, nil
		case strings.HasSuffix(prompt, "Return the summary only."):
			return "Plants use light.", nil
		case strings.HasSuffix(prompt, "Return the final structured summary."):
			return "## Overview\nPlants use light.", nil
		case strings.HasSuffix(prompt, "Answer:"):
			return "Plants absorb light energy.", nil
		}
		return "", errors.New("unexpected prompt")
	})
	lib, err := library.NewFileLibrary(filepath.Join(dir, "summaries"), filepath.Join(dir, "quizzes"))
	if err != nil {
		t.Fatal(err)
	}
	svc := service.New(cfg, service.Deps{
		Store:    store.NewMemoryStore(),
		Embedder: embedder,
		LLM:      llmservice.NewGateway(llm, "m", llmservice.WithRetry(0, 0)),
		Library:  lib,
	})
	t.Cleanup(func() { svc.Close() })

	srv := httptest.NewServer(NewServer(svc, &cfg.Server).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, url string, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if got := decode(t, resp)["message"]; got != "RAG Backend is Running!" {
		t.Errorf("message = %v", got)
	}
}

func TestUploadChatSummarizeQuiz(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv.URL, map[string]string{
		"plants.txt": strings.Repeat("Plants absorb light and turn it into sugar. ", 30),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	body := decode(t, resp)
	if body["status"] != "success" || !strings.HasPrefix(body["message"].(string), "Successfully processed 1 files. Merged into") {
		t.Errorf("upload = %v", body)
	}

	resp = postJSON(t, srv.URL+"/chat", map[string]string{"query": "What do plants absorb?"})
	body = decode(t, resp)
	if body["response"] != "Plants absorb light energy." || body["outcome"] != "ok" {
		t.Errorf("chat = %v", body)
	}

	body = decode(t, get(t, srv.URL+"/summarize"))
	if body["summary"] != "## Overview\nPlants use light." {
		t.Errorf("summarize = %v", body)
	}

	body = decode(t, get(t, srv.URL+"/quiz"))
	items, ok := body["quiz"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("quiz = %v", body)
	}
	if q := items[0].(map[string]any)["question"]; q != "What do plants absorb?" {
		t.Errorf("question = %v", q)
	}
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		files map[string]string
	}{
		{"too many files", map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"}},
		{"nothing readable", map[string]string{"tool.exe": "MZ"}},
		{"no files", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, srv.URL, tt.files)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if body := decode(t, resp); body["status"] != "error" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestEmptyCorpus(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/summarize", "/quiz"} {
		if resp := get(t, srv.URL+path); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, resp.StatusCode)
		}
	}
	resp := postJSON(t, srv.URL+"/chat", map[string]string{"query": "anything"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("chat status = %d, want 400", resp.StatusCode)
	}
}

func TestChatBadBody(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/save_summary", map[string]string{"filename": "week 1", "summary_text": "Cells."})
	if body := decode(t, resp); body["message"] != "Saved as week 1" {
		t.Errorf("save_summary = %v", body)
	}
	body := decode(t, get(t, srv.URL+"/library/summaries"))
	if fmt.Sprint(body["files"]) != "[week 1]" {
		t.Errorf("summaries = %v", body)
	}
	body = decode(t, get(t, srv.URL+"/library/summaries/week%201"))
	if body["summary"] != "Cells." {
		t.Errorf("summary = %v", body)
	}
	if resp := get(t, srv.URL+"/library/summaries/missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing summary status = %d", resp.StatusCode)
	}

	var items []any
	json.Unmarshal([]byte(quizJSON), &items)
	resp = postJSON(t, srv.URL+"/save_quiz", map[string]any{"filename": "quiz1", "quiz_data": items})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save_quiz status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	body = decode(t, get(t, srv.URL+"/library"))
	if fmt.Sprint(body["files"]) != "[quiz1]" {
		t.Errorf("quizzes = %v", body)
	}
	body = decode(t, get(t, srv.URL+"/library/quiz1"))
	if q, ok := body["quiz"].([]any); !ok || len(q) != 1 {
		t.Errorf("quiz = %v", body)
	}
	if resp := get(t, srv.URL+"/library/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing quiz status = %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/save_summary", map[string]string{"filename": "...", "summary_text": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name status = %d, want 400", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: maximum 5", service.ErrTooManyFiles), http.StatusBadRequest},
		{rag.ErrEmptyCorpus, http.StatusBadRequest},
		{library.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
