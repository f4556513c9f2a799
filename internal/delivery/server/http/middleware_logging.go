package http

import (
	"strings"
	"time"

	"marco/internal/shared/logging"
	id "marco/internal/shared/utils/id"

	"github.com/gin-gonic/gin"
)

const logIDHeader = "X-Log-Id"

func resolveLogID(c *gin.Context) string {
	for _, header := range []string{logIDHeader, "X-Request-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
			return value
		}
	}
	return ""
}

// LoggingMiddleware tags each request with a log id and logs it once served.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logID := id.LogIDFromContext(ctx)
		if logID == "" {
			logID = resolveLogID(c)
			if logID == "" {
				logID = id.NewLogID()
			}
			ctx = id.WithLogID(ctx, logID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Header(logIDHeader, logID)

		start := time.Now()
		c.Next()

		// Scrapes and probes are too frequent to log at info.
		reqLogger := logging.WithLogID(logger, logID)
		line := "HTTP: %s %s from %s -> %d (%s)"
		args := []any{c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start)}
		if isProbe(c.Request.URL.Path) {
			reqLogger.Debug(line, args...)
			return
		}
		reqLogger.Info(line, args...)
	}
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/metrics"
}
