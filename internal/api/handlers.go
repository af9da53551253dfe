package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"campus-assistant/internal/library"
	"campus-assistant/internal/models"
	"campus-assistant/internal/rag"
	"campus-assistant/internal/service"
	"campus-assistant/internal/summary"

	"github.com/rs/zerolog"
)

type chatRequest struct {
	Query string `json:"query"`
}

type saveSummaryRequest struct {
	Filename    string `json:"filename"`
	SummaryText string `json:"summary_text"`
}

type saveQuizRequest struct {
	Filename string            `json:"filename"`
	QuizData []models.QuizItem `json:"quiz_data"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "RAG Backend is Running!"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) > s.cfg.MaxFiles {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("Maximum %d files allowed.", s.cfg.MaxFiles),
		})
		return
	}

	files := make([]service.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			if err := os.Remove(f.Path); err != nil {
				logger.Warn().Err(err).Str("path", f.Path).Msg("Failed to remove upload")
			}
		}
	}()
	for _, fh := range headers {
		path, err := s.saveUpload(fh)
		if err != nil {
			logger.Error().Err(err).Str("file", fh.Filename).Msg("Failed to save upload")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		files = append(files, service.File{Path: path, Name: filepath.Base(fh.Filename)})
	}

	res, err := s.backend.Ingest(r.Context(), files)
	if err != nil {
		logger.Error().Err(err).Msg("Ingestion failed")
		writeJSON(w, statusFor(err), map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": res.Message,
		"files":   res.Files,
		"chunks":  res.Chunks,
		"skipped": res.Skipped,
	})
}

// saveUpload copies an uploaded part into the upload dir, keeping its extension
// so the parser can pick a format
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(s.cfg.UploadDir, "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.Summarize(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":            res.Final,
		"outcome":            res.Outcome,
		"compression_rounds": res.CompressionRounds,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	ans, err := s.backend.Chat(r.Context(), req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response": ans.Answer,
		"sources":  ans.Sources,
		"outcome":  ans.Outcome,
	})
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.Quiz(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": res.Items, "outcome": res.Outcome})
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	names, err := s.backend.ListSummaries()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": nonNil(names)})
}

func (s *Server) handleLoadSummary(w http.ResponseWriter, r *http.Request) {
	text, err := s.backend.LoadSummary(r.PathValue("name"))
	if errors.Is(err, library.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Summary not found"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

func (s *Server) handleSaveSummary(w http.ResponseWriter, r *http.Request) {
	var req saveSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.backend.SaveSummary(req.Filename, req.SummaryText); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Saved as " + req.Filename})
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	names, err := s.backend.ListQuizzes()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": nonNil(names)})
}

func (s *Server) handleLoadQuiz(w http.ResponseWriter, r *http.Request) {
	items, err := s.backend.LoadQuiz(r.PathValue("name"))
	if errors.Is(err, library.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Quiz not found"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": items})
}

func (s *Server) handleSaveQuiz(w http.ResponseWriter, r *http.Request) {
	var req saveQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.backend.SaveQuiz(req.Filename, req.QuizData); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Saved as " + req.Filename})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrTooManyFiles),
		errors.Is(err, service.ErrNoTextExtracted),
		errors.Is(err, library.ErrInvalidName),
		errors.Is(err, rag.ErrEmptyCorpus),
		errors.Is(err, summary.ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
