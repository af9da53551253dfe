package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"campus-assistant/internal/config"
	"campus-assistant/internal/metrics"
	"campus-assistant/internal/models"
	"campus-assistant/internal/service"

	"github.com/rs/zerolog/log"
)

// Backend is what the HTTP layer needs from the service
type Backend interface {
	Ingest(ctx context.Context, files []service.File) (*service.IngestResult, error)
	Chat(ctx context.Context, question string) (*models.ChatAnswer, error)
	Summarize(ctx context.Context) (*models.SummaryResult, error)
	Quiz(ctx context.Context) (*models.QuizResult, error)
	SaveSummary(name, text string) error
	ListSummaries() ([]string, error)
	LoadSummary(name string) (string, error)
	SaveQuiz(name string, items []models.QuizItem) error
	ListQuizzes() ([]string, error)
	LoadQuiz(name string) ([]models.QuizItem, error)
}

type Server struct {
	backend Backend
	cfg     config.ServerConfig
}

func NewServer(backend Backend, cfg *config.ServerConfig) *Server {
	return &Server{backend: backend, cfg: *cfg}
}

// Handler returns the routed handler with request logging and CORS
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /summarize", s.handleSummarize)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /quiz", s.handleQuiz)

	mux.HandleFunc("GET /library/summaries", s.handleListSummaries)
	mux.HandleFunc("GET /library/summaries/{name}", s.handleLoadSummary)
	mux.HandleFunc("POST /save_summary", s.handleSaveSummary)
	mux.HandleFunc("GET /library", s.handleListQuizzes)
	mux.HandleFunc("GET /library/{name}", s.handleLoadQuiz)
	mux.HandleFunc("POST /save_quiz", s.handleSaveQuiz)

	mux.Handle("GET /metrics", metrics.Handler())

	return withCORS(withRequestLog(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
