package http

import (
	"net/http"
	"strconv"

	"marco/internal/shared/async"
	"marco/internal/shared/logging"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// ObservabilityMiddleware counts requests by route template and status code.
// Unknown paths share one label so scanners cannot inflate cardinality.
func ObservabilityMiddleware(metrics RequestMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}

// RecoveryMiddleware turns a handler panic into a 500 and logs it.
func RecoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		ok := async.Safe(logger, "http "+c.Request.Method+" "+c.Request.URL.Path, c.Next)
		if !ok && !c.Writer.Written() {
			c.Abort()
			writeJSONError(c, http.StatusInternalServerError, "internal error")
		}
	}
}
