package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type captureHandler struct {
	updates []Update
}

func (h *captureHandler) HandleUpdate(_ context.Context, update Update) error {
	h.updates = append(h.updates, update)
	return nil
}

func serveWebhook(handler UpdateHandler, secret, header, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", WebhookHandler(handler, secret))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(secretTokenHeader, header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsUpdate(t *testing.T) {
	handler := &captureHandler{}
	rec := serveWebhook(handler, "s3cret", "s3cret", `{"update_id":7,"message":{"message_id":1,"from":{"id":3},"chat":{"id":3},"text":"yes"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	if assert.Len(t, handler.updates, 1) {
		assert.Equal(t, int64(7), handler.updates[0].UpdateID)
		assert.Equal(t, "yes", handler.updates[0].Message.Text)
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	handler := &captureHandler{}
	rec := serveWebhook(handler, "s3cret", "guess", `{"update_id":7}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, handler.updates)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	handler := &captureHandler{}
	rec := serveWebhook(handler, "", "", `{"update_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, handler.updates)
}
