package telegram

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	jsonx "marco/internal/shared/json"

	"github.com/gin-gonic/gin"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody    = 1 << 20
	webhookTimeout    = 50 * time.Second
)

// WebhookHandler accepts updates pushed by Telegram. When secret is set the
// request must carry it in the secret token header.
func WebhookHandler(handler UpdateHandler, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			got := c.GetHeader(secretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false})
				return
			}
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false})
			return
		}
		var update Update
		if err := jsonx.Unmarshal(body, &update); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid update"})
			return
		}

		// Telegram retries on non-2xx, so handler failures still answer ok.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), webhookTimeout)
		defer cancel()
		_ = handler.HandleUpdate(ctx, update)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
