package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"campus-assistant/internal/llmservice"
	"campus-assistant/internal/metrics"
	"campus-assistant/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	chunkSnippetChars = 1500
	chunkContextChars = 6000
)

// Generator asks the model for multiple-choice questions over a context
type Generator struct {
	llm       llmservice.Completer
	maxTokens int
}

func NewGenerator(llm llmservice.Completer, maxTokens int) *Generator {
	return &Generator{llm: llm, maxTokens: maxTokens}
}

// Generate requests n questions about source and parses the answer
func (g *Generator) Generate(ctx context.Context, source string, n int) *models.QuizResult {
	prompt := fmt.Sprintf(models.QuizPromptTemplate, n, source)
	raw := llmservice.Text(ctx, g.llm, prompt, g.maxTokens, 0.0)

	items, ok := Parse(raw)
	outcome := models.OutcomeOK
	if !ok {
		outcome = models.OutcomeDegraded
	}
	metrics.QuizParses.WithLabelValues(string(outcome)).Inc()
	log.Info().Int("requested", n).Int("items", len(items)).Str("outcome", string(outcome)).Msg("Generated quiz")
	return &models.QuizResult{Items: items, Outcome: outcome}
}

type item struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
	Explanation   string            `json:"explanation"`
}

// Parse extracts the JSON array of questions from raw model output, repairing a
// truncated array when possible. When nothing usable comes out it returns a
// single item wrapping raw and false.
func Parse(raw string) ([]models.QuizItem, bool) {
	var decoded []item
	if err := json.Unmarshal([]byte(extractArray(raw)), &decoded); err != nil {
		log.Warn().Err(err).Msg("quiz JSON parsing error")
		return rawItem(raw), false
	}
	if len(decoded) == 0 {
		log.Warn().Msg("quiz JSON array is empty")
		return rawItem(raw), false
	}

	items := make([]models.QuizItem, len(decoded))
	for i, it := range decoded {
		options := it.Options
		if options == nil {
			options = map[string]string{}
		}
		items[i] = models.QuizItem{
			Question:      strings.TrimSpace(it.Question),
			Options:       options,
			CorrectOption: strings.TrimSpace(it.CorrectOption),
			Explanation:   strings.TrimSpace(it.Explanation),
		}
	}
	return items, true
}

// extractArray returns the span from the first '[' to the last ']'. Without one
// it cuts after the last '}' and closes the array.
func extractArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}

	last := strings.LastIndex(raw, "}")
	if last < 0 {
		return raw
	}
	text := raw[:last+1] + "]"
	if start < 0 || start > last {
		text = "[" + strings.TrimLeft(text, " \t\r\n")
	} else {
		text = text[start:]
	}
	return text
}

func rawItem(raw string) []models.QuizItem {
	return []models.QuizItem{models.RawItem(raw)}
}

// ChunkContext concatenates chunk texts for quiz generation when no summary is
// available
func ChunkContext(chunks []models.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = truncate(c.Text, chunkSnippetChars)
	}
	return truncate(strings.Join(parts, "\n"), chunkContextChars)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
