package models

// Outcome tells callers whether a result is genuine or a degraded stand-in
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
	OutcomeDegraded Outcome = "degraded"
)

// ChatAnswer is the result of answering one question against the document
type ChatAnswer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Prompt   string   `json:"prompt"`
	Outcome  Outcome  `json:"outcome"`
}

// IntermediateSummary is the map-phase output for one batch of chunks
type IntermediateSummary struct {
	BatchIndex int    `json:"batch_idx"`
	Summary    string `json:"summary"`
	Degraded   bool   `json:"degraded,omitempty"`
}

// SummaryResult is the output of a full map-reduce run
type SummaryResult struct {
	Intermediates     []IntermediateSummary `json:"intermediate_summaries"`
	Final             string                `json:"final_summary"`
	Outcome           Outcome               `json:"outcome"`
	CompressionRounds int                   `json:"compression_rounds"`
	EstimatedTokens   int                   `json:"estimated_tokens"`
	AllowedTokens     int                   `json:"allowed_tokens"`
}

// QuizItem is one multiple-choice question. When the model output could not be
// parsed, only Raw is set, possibly to an empty string.
type QuizItem struct {
	Question      string            `json:"question,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectOption string            `json:"correct_option,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
	Raw           *string           `json:"raw,omitempty"`
}

// RawItem wraps unparsed model output
func RawItem(raw string) QuizItem {
	return QuizItem{Raw: &raw}
}

// IsRaw reports whether the item wraps unparsed model output
func (q QuizItem) IsRaw() bool {
	return q.Raw != nil
}

// RawText returns the wrapped output, empty for parsed items
func (q QuizItem) RawText() string {
	if q.Raw == nil {
		return ""
	}
	return *q.Raw
}

// QuizResult is a generated quiz
type QuizResult struct {
	Items   []QuizItem `json:"quiz"`
	Outcome Outcome    `json:"outcome"`
}
