package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"campus-assistant/internal/config"
	"campus-assistant/internal/embedding"
	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/metrics"
	"campus-assistant/internal/models"
	"campus-assistant/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyCorpus = errors.New("no documents ingested")

// Lookup answers a question from an outside knowledge source
type Lookup interface {
	Lookup(ctx context.Context, query string) (string, bool)
}

// RAG answers questions from the chunk store, falling back to an outside lookup
// when the document does not contain the answer
type RAG struct {
	llm      llmservice.Completer
	store    store.ChunkStore
	embedder embeddings.Embedder
	lookup   Lookup
	cfg      config.RAGConfig
}

// NewRAG wires the engine. lookup may be nil, the fallback then always fails.
func NewRAG(llm llmservice.Completer, st store.ChunkStore, embedder embeddings.Embedder, lookup Lookup, cfg *config.RAGConfig) *RAG {
	return &RAG{llm: llm, store: st, embedder: embedder, lookup: lookup, cfg: *cfg}
}

// GenerateQueries returns question followed by the paraphrases the model came up with
func (r *RAG) GenerateQueries(ctx context.Context, question string) []string {
	prompt := fmt.Sprintf(models.MultiQueryPromptTemplate, r.cfg.Variations, question)
	resp := llmservice.Text(ctx, r.llm, prompt, 256, 0.7)

	queries := []string{question}
	for _, line := range strings.Split(resp, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			queries = append(queries, line)
		}
	}
	log.Debug().Strs("queries", queries).Msg("Generated query variations")
	return queries
}

// Retrieve returns the k chunks closest to query. When the store cannot run the
// similarity query every chunk is re-embedded and ranked by Euclidean distance.
func (r *RAG) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.SimilarityQuery(ctx, vec, k)
	if err == nil {
		return results, nil
	}
	log.Warn().Err(err).Msg("similarity query failed, ranking all chunks")
	metrics.RetrievalFallbacks.Inc()

	chunks, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	vectors, err := embedding.EmbedChunks(ctx, r.embedder, chunks, 0, 1)
	if err != nil {
		return nil, err
	}
	return store.RankByDistance(vec, chunks, vectors, k), nil
}

// retrieveAll runs Retrieve for every query and merges the results: first
// occurrence of an id wins, in query order then rank order, capped at limit
func (r *RAG) retrieveAll(ctx context.Context, queries []string) ([]models.RetrievalResult, error) {
	perQuery := make([][]models.RetrievalResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Concurrency, 1))
	for i, q := range queries {
		g.Go(func() error {
			res, err := r.Retrieve(gctx, q, r.cfg.TopK)
			if err != nil {
				return err
			}
			perQuery[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dedup(perQuery, r.cfg.MaxContextChunks), nil
}

func dedup(perQuery [][]models.RetrievalResult, limit int) []models.RetrievalResult {
	seen := make(map[string]bool)
	var out []models.RetrievalResult
	for _, results := range perQuery {
		for _, res := range results {
			if seen[res.ID] {
				continue
			}
			seen[res.ID] = true
			out = append(out, res)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BuildContext renders retrieved chunks as SOURCE_ID blocks
func BuildContext(results []models.RetrievalResult, maxChars int) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, models.SourceBlock(res.ID, res.Text, maxChars))
	}
	return strings.Join(parts, models.ContextSeparator)
}

// needsFallback reports whether the model gave up on the document
func needsFallback(answer string) bool {
	return strings.Contains(answer, models.NoAnswerDisclaimer) || utf8.RuneCountInString(answer) < 5
}

// Answer runs multi-query retrieval and answers question from the merged context
func (r *RAG) Answer(ctx context.Context, question string) (*models.ChatAnswer, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyCorpus
	}

	queries := r.GenerateQueries(ctx, question)
	retrieved, err := r.retrieveAll(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate,
		models.AnswerInstruction, BuildContext(retrieved, r.cfg.SnippetMaxChars), question)
	answer := strings.TrimSpace(llmservice.Text(ctx, r.llm, prompt, r.cfg.AnswerMaxTokens, 0.0))

	outcome := models.OutcomeOK
	if needsFallback(answer) {
		log.Info().Str("question", question).Msg("Answer not in documents, searching Wikipedia")
		answer, outcome = r.fallback(ctx, question)
	}
	metrics.ChatAnswers.WithLabelValues(string(outcome)).Inc()

	sources := make([]string, len(retrieved))
	for i, res := range retrieved {
		sources[i] = res.ID
	}
	return &models.ChatAnswer{
		Question: question,
		Answer:   answer,
		Sources:  sources,
		Prompt:   prompt,
		Outcome:  outcome,
	}, nil
}

func (r *RAG) fallback(ctx context.Context, question string) (string, models.Outcome) {
	if r.lookup != nil {
		if text, ok := r.lookup.Lookup(ctx, question); ok {
			return models.WikipediaPrefix + text, models.OutcomeFallback
		}
	}
	return models.NothingFoundAnswer, models.OutcomeDegraded
}
