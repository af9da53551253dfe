package llmservice

import (
	"context"
	"strings"
	"time"

	"campus-assistant/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// Request is one completion request
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the result of a gateway call. Err is set when no attempt produced
// text; Text is then empty.
type Completion struct {
	Text     string
	Model    string
	Attempts int
	Err      error
}

// OK reports whether the completion carries text
func (c Completion) OK() bool {
	return c.Err == nil && c.Text != ""
}

// Completer is what the engines need from the gateway
type Completer interface {
	Complete(ctx context.Context, req Request) Completion
}

// Gateway sends prompts to the language model. It picks a served model, retries
// model and rate errors with exponential backoff and fails fast on anything else.
type Gateway struct {
	llm         llms.Model
	lister      ModelLister
	preferred   string
	families    []string
	retry       int
	backoffBase time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Gateway)

// WithModelLister enables model selection from the endpoint's model list
func WithModelLister(l ModelLister) Option {
	return func(g *Gateway) { g.lister = l }
}

// WithRetry sets how many times a retryable failure is retried and the backoff base
func WithRetry(retry int, base time.Duration) Option {
	return func(g *Gateway) {
		g.retry = max(retry, 0)
		g.backoffBase = base
	}
}

func WithModelFamilies(families []string) Option {
	return func(g *Gateway) {
		if len(families) > 0 {
			g.families = families
		}
	}
}

// WithRateLimit caps outgoing requests per second
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithSleep replaces the backoff sleep, tests use it to record delays
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

func NewGateway(llm llms.Model, preferred string, opts ...Option) *Gateway {
	g := &Gateway{
		llm:         llm,
		preferred:   preferred,
		families:    DefaultModelFamilies,
		retry:       1,
		backoffBase: time.Second,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// errorKind classifies a failed call
type errorKind int

const (
	errFatal errorKind = iota
	errModel
	errRate
)

func classify(err error) errorKind {
	msg := strings.ToLower(err.Error())
	for _, token := range []string{"model", "not found", "decommissioned", "invalid_request", "unsupported"} {
		if strings.Contains(msg, token) {
			return errModel
		}
	}
	for _, token := range []string{"rate_limit", "tokens", "too large"} {
		if strings.Contains(msg, token) {
			return errRate
		}
	}
	return errFatal
}

func (k errorKind) String() string {
	switch k {
	case errModel:
		return "model"
	case errRate:
		return "rate"
	default:
		return "fatal"
	}
}

// PickModel returns the model to call, consulting the model list when a lister
// is configured
func (g *Gateway) PickModel(ctx context.Context, preferred string) string {
	if g.lister == nil {
		if preferred == "" {
			return g.preferred
		}
		return preferred
	}
	names, err := g.lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("model listing failed")
		return preferred
	}
	return chooseModel(names, preferred, g.families)
}

// Complete runs req with up to retry+1 attempts
func (g *Gateway) Complete(ctx context.Context, req Request) Completion {
	start := time.Now()
	defer metrics.ObserveSince(metrics.LLMDuration, start)

	model := g.PickModel(ctx, g.preferred)
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= g.retry; attempt++ {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		text, err := g.generate(ctx, model, req)
		if err == nil {
			outcome := "ok"
			if text == "" {
				outcome = "empty"
			}
			metrics.LLMCalls.WithLabelValues(outcome).Inc()
			return Completion{Text: text, Model: model, Attempts: attempts}
		}
		lastErr = err

		kind := classify(err)
		log.Warn().Err(err).
			Str("model", model).
			Int("attempt", attempt).
			Stringer("kind", kind).
			Msg("llm call failed")
		if kind == errFatal || ctx.Err() != nil {
			break
		}
		if kind == errModel {
			model = g.PickModel(ctx, "")
		}
		if attempt == g.retry {
			break
		}
		metrics.LLMRetries.WithLabelValues(kind.String()).Inc()
		if err := g.sleep(ctx, g.backoffBase*time.Duration(1<<attempt)); err != nil {
			lastErr = err
			break
		}
	}

	metrics.LLMCalls.WithLabelValues("failed").Inc()
	return Completion{Model: model, Attempts: attempts, Err: lastErr}
}

// Call returns the completion text, or "" when the call failed
func (g *Gateway) Call(ctx context.Context, prompt string, maxTokens int, temperature float64) string {
	return g.Complete(ctx, Request{Prompt: prompt, MaxTokens: maxTokens, Temperature: temperature}).Text
}

func (g *Gateway) generate(ctx context.Context, model string, req Request) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt)}
	resp, err := g.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	return extractText(resp), nil
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

// Text calls c and returns the trimmed text, empty on failure
func Text(ctx context.Context, c Completer, prompt string, maxTokens int, temperature float64) string {
	return c.Complete(ctx, Request{Prompt: prompt, MaxTokens: maxTokens, Temperature: temperature}).Text
}
