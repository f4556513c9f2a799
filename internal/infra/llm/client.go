package llm

import (
	"net/http"
	"strings"
	"time"

	"marco/internal/infra/httpclient"
	jsonx "marco/internal/shared/json"
	"marco/internal/shared/logging"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("marco/infra/llm")

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second
)

// Config describes an OpenAI compatible endpoint.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	TranscriptionModel string
	Timeout            time.Duration
}

// newRestyClient builds the shared API client. A nil httpClient gets a
// breaker-guarded default so a failing upstream stops being hammered.
func newRestyClient(cfg Config, httpClient *http.Client, logger logging.Logger, name string) *resty.Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = httpclient.NewWithCircuitBreaker(timeout, logger, name)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(jsonx.Marshal).
		SetJSONUnmarshaler(jsonx.Unmarshal)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetAuthToken(key)
	}
	return client
}
