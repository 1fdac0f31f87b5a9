package translator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/profitpulse/query-gateway/internal/config"
	"github.com/profitpulse/query-gateway/internal/examples"
	"github.com/profitpulse/query-gateway/internal/observability"
	"github.com/profitpulse/query-gateway/internal/scope"
)

const (
	DefaultModel        = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens    = 1024
	DefaultExampleLimit = 3
)

// Claude translates questions with the Anthropic Messages API. Retries are
// left to the caller; the SDK's own retry loop is disabled.
type Claude struct {
	client       sdk.Client
	model        string
	maxTokens    int64
	temperature  float64
	corpus       examples.Corpus
	source       examples.Source
	exampleLimit int
	logger       *observability.Logger
}

// NewClaude creates a translator. source may be nil, in which case the
// corpus examples are always used.
func NewClaude(cfg config.AnthropicConfig, corpus examples.Corpus, source examples.Source) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("translator: anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Claude{
		client:       sdk.NewClient(opts...),
		model:        model,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		corpus:       corpus,
		source:       source,
		exampleLimit: DefaultExampleLimit,
		logger:       observability.NewLogger("translator"),
	}, nil
}

// Translate implements Translator
func (c *Claude) Translate(ctx context.Context, question scope.ScopedQuestion) (Translation, error) {
	start := time.Now()

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      []sdk.TextBlockParam{{Text: BuildSystemPrompt(c.corpus, c.shots(ctx, question.Question))}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(question.Text))},
		Temperature: sdk.Float(c.temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		kind := classify(ctx, err)
		observability.RecordTranslatorMetrics(c.model, time.Since(start), 0, 0, string(kind))
		return Translation{}, &Error{Kind: kind, Err: eris.Wrap(err, "anthropic: create message")}
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		observability.RecordTranslatorMetrics(c.model, time.Since(start), msg.Usage.InputTokens, msg.Usage.OutputTokens, string(ErrorMalformed))
		return Translation{}, &Error{Kind: ErrorMalformed, Err: eris.Errorf("response %s has no text content", msg.ID)}
	}

	t := Parse(strings.Join(parts, "\n"))
	t.Model = string(msg.Model)
	t.Usage = Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens}

	observability.RecordTranslatorMetrics(c.model, time.Since(start), t.Usage.InputTokens, t.Usage.OutputTokens, "")
	c.logger.Debug(ctx, "translation received", map[string]interface{}{
		"model":         t.Model,
		"kind":          string(t.Kind),
		"input_tokens":  t.Usage.InputTokens,
		"output_tokens": t.Usage.OutputTokens,
	})
	return t, nil
}

// shots picks the few-shot examples for a question. A failing source falls
// back to the static corpus.
func (c *Claude) shots(ctx context.Context, question string) []examples.Example {
	if c.source != nil {
		similar, err := c.source.Similar(ctx, question, c.exampleLimit)
		if err == nil && len(similar) > 0 {
			return similar
		}
		if err != nil {
			c.logger.Warn(ctx, "example lookup failed, using static examples", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if len(c.corpus.Examples) > c.exampleLimit {
		return c.corpus.Examples[:c.exampleLimit]
	}
	return c.corpus.Examples
}

func classify(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrorCanceled
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return ErrorQuota
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return ErrorTimeout
		case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
			return ErrorMalformed
		default:
			return ErrorUnavailable
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorUnavailable
}
