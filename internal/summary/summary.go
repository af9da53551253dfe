package summary

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"campus-assistant/internal/config"
	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/metrics"
	"campus-assistant/internal/models"
	"campus-assistant/internal/store"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyCorpus = errors.New("no chunks found in collection")

// reduce prompt headroom on top of the final answer budget
const reservedTokens = 128

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// Summarizer produces a whole-document summary with map-reduce over the chunk store
type Summarizer struct {
	llm   llmservice.Completer
	store store.ChunkStore
	cfg   config.SummaryConfig

	intermediateInstruction string
	finalInstruction        string
	sleep                   func(ctx context.Context, d time.Duration) error
}

type Option func(*Summarizer)

// WithInstructions replaces the map and reduce instructions. Empty strings keep
// the defaults.
func WithInstructions(intermediate, final string) Option {
	return func(s *Summarizer) {
		if intermediate != "" {
			s.intermediateInstruction = intermediate
		}
		if final != "" {
			s.finalInstruction = final
		}
	}
}

// WithSleep replaces the retry backoff sleep
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Summarizer) { s.sleep = sleep }
}

func NewSummarizer(llm llmservice.Completer, st store.ChunkStore, cfg *config.SummaryConfig, opts ...Option) *Summarizer {
	s := &Summarizer{
		llm:                     llm,
		store:                   st,
		cfg:                     *cfg,
		intermediateInstruction: models.IntermediateInstruction,
		finalInstruction:        models.FinalInstruction,
		sleep:                   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize runs map, bounded compression and reduce over every stored chunk
func (s *Summarizer) Summarize(ctx context.Context) (*models.SummaryResult, error) {
	chunks, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}
	SortByPosition(chunks)

	batches := Batches(chunks, s.cfg.BatchSize)
	log.Info().Int("chunks", len(chunks)).Int("batches", len(batches)).Msg("Summarizing document")

	intermediates, err := s.mapBatches(ctx, batches)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(intermediates))
	for i, it := range intermediates {
		texts[i] = it.Summary
	}
	estimated := EstimateTokens(Combine(texts))
	allowed := AllowedTokens(s.cfg.ModelTokenLimit, s.cfg.FinalMaxTokens)
	log.Info().Int("estimated_tokens", estimated).Int("allowed_tokens", allowed).Msg("Reduce budget")

	rounds := 0
	for estimated > allowed && rounds < s.cfg.CompressionMaxRounds {
		rounds++
		log.Info().Int("round", rounds).Msg("Compressing intermediate summaries")
		texts = s.compress(ctx, texts, rounds)
		estimated = EstimateTokens(Combine(texts))
	}
	metrics.CompressionRounds.Observe(float64(rounds))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final, ok := s.reduce(ctx, texts)
	outcome := models.OutcomeOK
	if !ok || allDegraded(intermediates) {
		outcome = models.OutcomeDegraded
	}

	return &models.SummaryResult{
		Intermediates:     intermediates,
		Final:             final,
		Outcome:           outcome,
		CompressionRounds: rounds,
		EstimatedTokens:   estimated,
		AllowedTokens:     allowed,
	}, nil
}

// mapBatches summarizes each batch, concurrently up to cfg.Concurrency. Results
// are stored by batch index.
func (s *Summarizer) mapBatches(ctx context.Context, batches [][]models.Chunk) ([]models.IntermediateSummary, error) {
	out := make([]models.IntermediateSummary, len(batches))
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for i, batch := range batches {
		g.Go(func() error {
			log.Debug().Int("batch", i+1).Int("of", len(batches)).Msg("Summarizing batch")
			out[i] = s.summarizeBatch(ctx, i, batch)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) summarizeBatch(ctx context.Context, idx int, batch []models.Chunk) models.IntermediateSummary {
	parts := make([]string, len(batch))
	for i, c := range batch {
		parts[i] = models.SourceBlock(c.ID, c.Text, s.cfg.SnippetMaxChars)
	}
	prompt := fmt.Sprintf(models.IntermediatePromptTemplate,
		s.intermediateInstruction, strings.Join(parts, models.ContextSeparator))
	req := llmservice.Request{Prompt: prompt, MaxTokens: s.cfg.IntermediateMaxTokens, Temperature: s.cfg.Temperature}

	for attempt := 0; attempt <= s.cfg.LLMRetry; attempt++ {
		c := s.llm.Complete(ctx, req)
		if text := strings.TrimSpace(c.Text); text != "" {
			metrics.SummaryBatches.WithLabelValues("ok").Inc()
			return models.IntermediateSummary{BatchIndex: idx, Summary: text}
		}
		log.Warn().Err(c.Err).Int("batch", idx).Int("attempt", attempt+1).Msg("empty batch summary")
		if attempt == s.cfg.LLMRetry {
			break
		}
		if err := s.sleep(ctx, s.cfg.RetryBackoff.Duration*time.Duration(attempt+1)); err != nil {
			break
		}
	}
	metrics.SummaryBatches.WithLabelValues("empty").Inc()
	return models.IntermediateSummary{BatchIndex: idx, Summary: models.EmptySummarySentinel, Degraded: true}
}

// compress runs one compression round. The result has the same length as texts;
// a group whose call fails keeps its texts and missing parts keep the original.
func (s *Summarizer) compress(ctx context.Context, texts []string, round int) []string {
	out := make([]string, len(texts))
	copy(out, texts)

	size := max(s.cfg.CompressionBatchSize, 1)
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			s.compressGroup(ctx, texts[start:end], start, out[start:end], round)
			return nil
		})
	}
	g.Wait()
	return out
}

func (s *Summarizer) compressGroup(ctx context.Context, group []string, offset int, out []string, round int) {
	labeled := make([]string, len(group))
	for i, txt := range group {
		labeled[i] = label(offset+i, txt)
	}
	prompt := fmt.Sprintf(models.CompressPromptTemplate, models.CompressInstruction, strings.Join(labeled, "\n\n"))

	c := s.llm.Complete(ctx, llmservice.Request{Prompt: prompt, MaxTokens: s.cfg.IntermediateMaxTokens, Temperature: s.cfg.Temperature})
	if c.Err != nil {
		log.Warn().Err(c.Err).Int("round", round).Int("offset", offset).Msg("compression failed, keeping group")
		return
	}
	parts := SplitParts(c.Text)
	if len(parts) < len(group) {
		log.Debug().Int("round", round).Int("parts", len(parts)).Int("want", len(group)).Msg("compression under-count, padding with originals")
	}
	for i := range group {
		if i < len(parts) {
			out[i] = parts[i]
		}
	}
}

func (s *Summarizer) reduce(ctx context.Context, texts []string) (string, bool) {
	prompt := fmt.Sprintf(models.FinalPromptTemplate, s.finalInstruction, Combine(texts))
	c := s.llm.Complete(ctx, llmservice.Request{Prompt: prompt, MaxTokens: s.cfg.FinalMaxTokens, Temperature: s.cfg.Temperature})
	final := strings.TrimSpace(c.Text)
	if final == "" {
		log.Error().Err(c.Err).Msg("final summary failed")
		return models.SummaryErrorText, false
	}
	return final, true
}

func allDegraded(intermediates []models.IntermediateSummary) bool {
	for _, it := range intermediates {
		if !it.Degraded {
			return false
		}
	}
	return true
}

// SortByPosition orders chunks by StartChar, keeping store order for ties
func SortByPosition(chunks []models.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].StartChar < chunks[j].StartChar })
}

// Batches splits chunks into consecutive groups of size; the last may be shorter
func Batches(chunks []models.Chunk, size int) [][]models.Chunk {
	size = max(size, 1)
	var out [][]models.Chunk
	for start := 0; start < len(chunks); start += size {
		out = append(out, chunks[start:min(start+size, len(chunks))])
	}
	return out
}

func label(i int, text string) string {
	return fmt.Sprintf("%s%d:\n%s", models.IntermediateLabel, i, text)
}

// Combine labels texts by position and joins them with blank lines
func Combine(texts []string) string {
	labeled := make([]string, len(texts))
	for i, txt := range texts {
		labeled[i] = label(i, txt)
	}
	return strings.Join(labeled, "\n\n")
}

// EstimateTokens approximates the token count as characters / 4, rounded up
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(1, (n+3)/4)
}

// AllowedTokens is the reduce input budget for a model limit and final answer size
func AllowedTokens(modelLimit, finalMaxTokens int) int {
	return max(0, modelLimit-finalMaxTokens-reservedTokens)
}

// SplitParts splits a response on blank lines and drops empty parts
func SplitParts(text string) []string {
	var parts []string
	for _, p := range blankLineRe.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
