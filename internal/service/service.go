package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"campus-assistant/internal/config"
	"campus-assistant/internal/embedding"
	"campus-assistant/internal/library"
	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/metrics"
	"campus-assistant/internal/models"
	"campus-assistant/internal/parser"
	"campus-assistant/internal/quiz"
	"campus-assistant/internal/rag"
	"campus-assistant/internal/store"
	"campus-assistant/internal/summary"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

var (
	ErrNoTextExtracted = errors.New("no text could be extracted from any of the uploaded files")
	ErrTooManyFiles    = errors.New("too many files")
	ErrNoFiles         = errors.New("no files given")
)

// File is one uploaded document. Name is the original filename used in page
// labels; Path is where its bytes live.
type File struct {
	Path string
	Name string
}

// IngestResult describes a finished ingestion
type IngestResult struct {
	Files   int      `json:"files"`
	Chunks  int      `json:"chunks"`
	Skipped []string `json:"skipped,omitempty"`
	Message string   `json:"message"`
}

// Deps are the collaborators the service is built from
type Deps struct {
	Store    store.ChunkStore
	Embedder embeddings.Embedder
	LLM      llmservice.Completer
	// Lookup is the outside knowledge source, nil disables the fallback
	Lookup  rag.Lookup
	Library library.Library
}

// Service owns the chunk store and runs ingestion, chat, summaries and quizzes
// over it. Ingestion replaces the collection under the write lock; everything
// else reads under the read lock.
type Service struct {
	mu sync.RWMutex

	cfg        *config.Config
	store      store.ChunkStore
	embedder   embeddings.Embedder
	rag        *rag.RAG
	summarizer *summary.Summarizer
	quiz       *quiz.Generator
	library    library.Library
}

func New(cfg *config.Config, deps Deps) *Service {
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		embedder:   deps.Embedder,
		rag:        rag.NewRAG(deps.LLM, deps.Store, deps.Embedder, deps.Lookup, &cfg.RAG),
		summarizer: summary.NewSummarizer(deps.LLM, deps.Store, &cfg.Summary),
		quiz:       quiz.NewGenerator(deps.LLM, cfg.Quiz.MaxTokens),
		library:    deps.Library,
	}
}

// Ingest extracts every file, merges the pages into one document, chunks and
// embeds it and replaces the stored collection. Files that cannot be read are
// skipped; ingestion fails only when none yields text.
func (s *Service) Ingest(ctx context.Context, files []File) (*IngestResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.cfg.Server.MaxFiles {
		return nil, fmt.Errorf("%w: maximum %d files allowed", ErrTooManyFiles, s.cfg.Server.MaxFiles)
	}
	log.Info().Int("files", len(files)).Msg("Processing files")

	var pages []models.Page
	var skipped []string
	for _, f := range files {
		filePages, err := parser.ExtractPages(f.Path, f.Name)
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name).Msg("Skipping file")
			skipped = append(skipped, f.Name)
			continue
		}
		pages = append(pages, filePages...)
	}
	if len(pages) == 0 {
		return nil, ErrNoTextExtracted
	}

	doc := parser.BuildCombinedDocument(pages)
	chunks := parser.ChunkText(doc, s.cfg.RAG.ChunkSize, s.cfg.RAG.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoTextExtracted
	}
	log.Info().Int("chunks", len(chunks)).Msg("Total merged chunks")

	vectors, err := embedding.EmbedChunks(ctx, s.embedder, chunks, s.cfg.EmbedLLM.BatchSize, s.cfg.RAG.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset chunk store: %w", err)
	}
	if err := s.store.Add(ctx, chunks, vectors); err != nil {
		// the previous generation is already gone, do not leave a partial one behind
		if resetErr := s.store.Reset(ctx); resetErr != nil {
			log.Error().Err(resetErr).Msg("Failed to clear partially stored chunks")
		}
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	metrics.IngestedChunks.Add(float64(len(chunks)))

	return &IngestResult{
		Files:   len(files),
		Chunks:  len(chunks),
		Skipped: skipped,
		Message: fmt.Sprintf("Successfully processed %d files. Merged into %d chunks.", len(files), len(chunks)),
	}, nil
}

// Chat answers question from the ingested documents
func (s *Service) Chat(ctx context.Context, question string) (*models.ChatAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rag.Answer(ctx, question)
}

// Summarize produces the whole-document summary
func (s *Service) Summarize(ctx context.Context) (*models.SummaryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summarizer.Summarize(ctx)
}

// Quiz generates questions from the document summary, or from raw chunk text
// when configured so or when the summary degraded
func (s *Service) Quiz(ctx context.Context) (*models.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source := ""
	if !s.cfg.Quiz.FromChunks {
		res, err := s.summarizer.Summarize(ctx)
		if err != nil {
			return nil, err
		}
		if res.Outcome == models.OutcomeOK {
			source = res.Final
		} else {
			log.Warn().Msg("Summary degraded, building quiz from chunks")
		}
	}
	if source == "" {
		chunks, err := s.store.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil, summary.ErrEmptyCorpus
		}
		summary.SortByPosition(chunks)
		source = quiz.ChunkContext(chunks)
	}
	return s.quiz.Generate(ctx, source, s.cfg.Quiz.Questions), nil
}

func (s *Service) SaveSummary(name, text string) error {
	return s.library.SaveSummary(name, text)
}

func (s *Service) ListSummaries() ([]string, error) {
	return s.library.ListSummaries()
}

func (s *Service) LoadSummary(name string) (string, error) {
	return s.library.LoadSummary(name)
}

func (s *Service) SaveQuiz(name string, items []models.QuizItem) error {
	return s.library.SaveQuiz(name, items)
}

func (s *Service) ListQuizzes() ([]string, error) {
	return s.library.ListQuizzes()
}

func (s *Service) LoadQuiz(name string) ([]models.QuizItem, error) {
	return s.library.LoadQuiz(name)
}

// Close releases the chunk store and the library
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.store.Close(), s.library.Close())
}
