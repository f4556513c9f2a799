package http

import (
	"net/http"

	jsonx "marco/internal/shared/json"

	"github.com/gin-gonic/gin"
)

// writeJSON serialises payload as JSON and writes it with the given status code.
func writeJSON(c *gin.Context, status int, payload any) {
	data, err := jsonx.Marshal(payload)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to encode response")
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func writeJSONError(c *gin.Context, status int, message string) {
	writeJSON(c, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}
