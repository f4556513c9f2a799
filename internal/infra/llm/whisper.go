package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	marcoerrors "marco/internal/shared/errors"
	"marco/internal/shared/logging"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

const defaultTranscriptionModel = "whisper-1"

// WhisperTranscriber sends audio to the /audio/transcriptions endpoint and
// returns the plain-text transcript.
type WhisperTranscriber struct {
	client *resty.Client
	model  string
	logger logging.Logger
}

// NewWhisperTranscriber builds a transcriber. A nil httpClient gets the
// breaker-guarded default.
func NewWhisperTranscriber(cfg Config, httpClient *http.Client, logger logging.Logger) *WhisperTranscriber {
	if logging.IsNil(logger) {
		logger = logging.NewCategorizedLogger(logging.CategoryLLM, "whisper")
	}
	model := strings.TrimSpace(cfg.TranscriptionModel)
	if model == "" {
		model = defaultTranscriptionModel
	}
	return &WhisperTranscriber{
		client: newRestyClient(cfg, httpClient, logger, "openai-audio"),
		model:  model,
		logger: logger,
	}
}

// Transcribe implements domain.Transcriber.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", w.model))

	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, audio).
		SetFormData(map[string]string{
			"model":           w.model,
			"response_format": "text",
		}).
		Post("/audio/transcriptions")
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if resp.IsError() {
		err := upstreamError("transcribe", resp.StatusCode(), resp.Body())
		span.RecordError(err)
		return "", err
	}
	transcript := strings.TrimSpace(resp.String())
	if transcript == "" {
		return "", marcoerrors.NewPermanentError(fmt.Errorf("empty transcript"), "transcribe")
	}
	logging.FromContext(ctx, w.logger).Debug("Whisper: transcribed %s (%d chars)", filename, len(transcript))
	return transcript, nil
}
