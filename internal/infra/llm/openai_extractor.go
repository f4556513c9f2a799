package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "marco/internal/domain/reminder"
	marcoerrors "marco/internal/shared/errors"
	jsonx "marco/internal/shared/json"
	"marco/internal/shared/logging"

	"github.com/go-resty/resty/v2"
	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultModel     = "gpt-4o-mini"
	maxResponseToken = 150
	systemPrompt     = "You are Marco."
)

const extractionPrompt = `You are Marco, a multilingual AI assistant. Understand Arabic, English, and mixed-language reminders.
The current time is %s.
Extract the following from the user message:
- Task title (in the original language)
- Date/time (in ISO format)
- Reminder lead time (in minutes, optional)

Message: '%s'

Respond ONLY in JSON format like:
{"task": "...", "datetime": "...", "reminder_minutes": ...}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenAIExtractor asks a chat completion model for {task, datetime,
// reminder_minutes}. Every failure is reported as a degraded result.
type OpenAIExtractor struct {
	client     *resty.Client
	httpClient *http.Client
	model      string
	clock      domain.Clock
	location   *time.Location
	logger     logging.Logger
	retry      marcoerrors.RetryConfig
}

// ExtractorOption customizes an OpenAIExtractor.
type ExtractorOption func(*OpenAIExtractor)

func WithExtractorClock(clock domain.Clock) ExtractorOption {
	return func(e *OpenAIExtractor) { e.clock = domain.ClockOrSystem(clock) }
}

// WithExtractorLocation sets the zone for datetimes the model returns without an offset.
func WithExtractorLocation(loc *time.Location) ExtractorOption {
	return func(e *OpenAIExtractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithExtractorLogger(logger logging.Logger) ExtractorOption {
	return func(e *OpenAIExtractor) { e.logger = logging.OrNop(logger) }
}

func WithExtractorRetry(cfg marcoerrors.RetryConfig) ExtractorOption {
	return func(e *OpenAIExtractor) { e.retry = cfg }
}

// WithExtractorHTTPClient replaces the breaker-guarded default client.
func WithExtractorHTTPClient(client *http.Client) ExtractorOption {
	return func(e *OpenAIExtractor) { e.httpClient = client }
}

// NewOpenAIExtractor builds an extractor for the chat completions endpoint at cfg.BaseURL.
func NewOpenAIExtractor(cfg Config, opts ...ExtractorOption) *OpenAIExtractor {
	e := &OpenAIExtractor{
		model:    strings.TrimSpace(cfg.Model),
		clock:    domain.SystemClock{},
		location: time.Local,
		retry: marcoerrors.RetryConfig{
			MaxAttempts:  1,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			JitterFactor: 0.25,
		},
	}
	if e.model == "" {
		e.model = defaultModel
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewCategorizedLogger(logging.CategoryLLM, "openai")
	}
	e.client = newRestyClient(cfg, e.httpClient, e.logger, "openai-chat")
	return e
}

// Extract implements domain.IntentExtractor.
func (e *OpenAIExtractor) Extract(ctx context.Context, rawText, localeHint string) domain.ExtractionResult {
	ctx, span := tracer.Start(ctx, "llm.extract")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", e.model))

	logger := logging.FromContext(ctx, e.logger)
	now := e.clock.Now()
	locale := domain.DetectLocale(rawText, localeHint)

	intent, err := e.extract(ctx, rawText, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract")
		logger.Warn("Extractor: falling back for %q: %v", sanitizeLogValue(rawText, 80), err)
		return domain.Degraded(domain.DegradedIntent(rawText, now, locale), err.Error())
	}
	intent.Locale = locale
	return domain.OK(intent.Normalize(rawText))
}

func (e *OpenAIExtractor) extract(ctx context.Context, rawText string, now time.Time) (domain.ParsedIntent, error) {
	request := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, now.In(e.location).Format(time.RFC3339), rawText)},
		},
		MaxTokens:   maxResponseToken,
		Temperature: 0,
	}

	var content string
	err := marcoerrors.RetryWithLog(ctx, e.retry, func(ctx context.Context) error {
		text, err := e.complete(ctx, request)
		if err != nil {
			return err
		}
		content = text
		return nil
	}, e.logger)
	if err != nil {
		return domain.ParsedIntent{}, err
	}
	return decodeIntent(content, e.location)
}

func (e *OpenAIExtractor) complete(ctx context.Context, request chatRequest) (string, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		return "", upstreamError("chat completion", resp.StatusCode(), resp.Body())
	}

	var decoded chatResponse
	if err := jsonx.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", marcoerrors.NewPermanentError(err, "decode chat completion")
	}
	if len(decoded.Choices) == 0 {
		return "", marcoerrors.NewPermanentError(fmt.Errorf("no choices"), "empty chat completion")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// intentPayload is the JSON object the prompt asks for.
type intentPayload struct {
	Task            *string     `json:"task"`
	Datetime        string      `json:"datetime"`
	ReminderMinutes leadMinutes `json:"reminder_minutes"`
}

// leadMinutes accepts numbers, numeric strings and null.
type leadMinutes struct {
	value int
	set   bool
}

func (l *leadMinutes) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("reminder_minutes %q: %w", raw, err)
	}
	l.value = int(f)
	l.set = true
	return nil
}

func decodeIntent(content string, loc *time.Location) (domain.ParsedIntent, error) {
	body := extractJSONObject(content)
	if body == "" {
		return domain.ParsedIntent{}, fmt.Errorf("no JSON object in model output %q", sanitizeLogValue(content, 80))
	}
	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("repair model output: %w", err)
	}

	var payload intentPayload
	if err := jsonx.Unmarshal([]byte(repaired), &payload); err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("decode model output: %w", err)
	}

	event, err := parseEventTime(payload.Datetime, loc)
	if err != nil {
		return domain.ParsedIntent{}, err
	}
	intent := domain.ParsedIntent{
		Task:        domain.UntitledTask,
		EventTime:   event,
		LeadMinutes: domain.DefaultLeadMinutes,
	}
	if payload.Task != nil {
		intent.Task = strings.TrimSpace(*payload.Task)
	}
	if payload.ReminderMinutes.set {
		intent.LeadMinutes = payload.ReminderMinutes.value
	}
	return intent, nil
}

// extractJSONObject strips markdown fences and surrounding prose.
func extractJSONObject(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}
