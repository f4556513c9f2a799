package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marco/internal/infra/httpclient"
	marcoerrors "marco/internal/shared/errors"
	jsonx "marco/internal/shared/json"
	"marco/internal/shared/logging"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"
	maxDownloadBytes  = 20 << 20
)

// ErrFileTooLarge is returned when a file exceeds the Bot API download limit.
var ErrFileTooLarge = errors.New("telegram: file too large")

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token      string
	APIBaseURL string
	Timeout    time.Duration
}

// Client is a minimal Bot API client.
type Client struct {
	rest   *resty.Client
	token  string
	logger logging.Logger
}

// NewClient builds a Bot API client. A nil httpClient gets a breaker-guarded
// default whose timeout leaves room for long polling.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger logging.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram client requires a bot token")
	}
	logger = logging.OrNop(logger)
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		httpClient = httpclient.NewWithCircuitBreaker(timeout, logger, "telegram")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	rest := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetJSONMarshaler(jsonx.Marshal).
		SetJSONUnmarshaler(jsonx.Unmarshal)
	return &Client{rest: rest, token: token, logger: logger}, nil
}

func (c *Client) methodPath(method string) string {
	return "/bot" + c.token + "/" + method
}

// call posts a JSON payload to method and decodes the result into out.
func call[T any](ctx context.Context, c *Client, method string, payload any, out *T) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.methodPath(method))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.token))
	}

	var envelope apiResponse[T]
	if decodeErr := jsonx.Unmarshal(resp.Body(), &envelope); decodeErr != nil {
		if resp.IsError() {
			return marcoerrors.FromHTTPStatus(resp.StatusCode(), fmt.Errorf("telegram %s: status %d", method, resp.StatusCode()))
		}
		return fmt.Errorf("telegram %s: decode: %w", method, decodeErr)
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode()
		}
		apiErr := fmt.Errorf("telegram %s: %d %s", method, code, envelope.Description)
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			return &marcoerrors.TransientError{Err: apiErr, StatusCode: code, RetryAfter: envelope.Parameters.RetryAfter}
		}
		return marcoerrors.FromHTTPStatus(code, apiErr)
	}
	if out != nil {
		*out = envelope.Result
	}
	return nil
}

// SendMessage sends plain text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var sent Message
	return call(ctx, c, "sendMessage", payload, &sent)
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := call(ctx, c, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DeleteWebhook removes a configured webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var ok bool
	return call(ctx, c, "deleteWebhook", map[string]any{"drop_pending_updates": false}, &ok)
}

// GetFile resolves a file id to a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	if err := call(ctx, c, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return File{}, err
	}
	if file.FilePath == "" {
		return File{}, fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}
	return file, nil
}

// DownloadFile fetches the content at a path returned by GetFile.
func (c *Client) DownloadFile(ctx context.Context, file File) ([]byte, error) {
	if file.FileSize > maxDownloadBytes {
		return nil, ErrFileTooLarge
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/file/bot" + c.token + "/" + strings.TrimLeft(file.FilePath, "/"))
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", redact(err, c.token))
	}
	if resp.IsError() {
		return nil, marcoerrors.FromHTTPStatus(resp.StatusCode(), fmt.Errorf("telegram download: status %d", resp.StatusCode()))
	}
	body := resp.Body()
	if len(body) > maxDownloadBytes {
		return nil, ErrFileTooLarge
	}
	return body, nil
}

// redact keeps the bot token out of logged URLs.
func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
