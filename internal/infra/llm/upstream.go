package llm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	marcoerrors "marco/internal/shared/errors"
	jsonx "marco/internal/shared/json"
)

const previewLimit = 240

func sanitizeLogValue(value string, limit int) string {
	if limit <= 0 {
		limit = previewLimit
	}
	compact := strings.Join(strings.Fields(strings.TrimSpace(value)), " ")
	runes := []rune(compact)
	if len(runes) <= limit {
		return compact
	}
	return string(runes[:limit-1]) + "…"
}

// parseUpstreamError pulls type and message out of an OpenAI style error body.
func parseUpstreamError(body []byte) (errType, errMessage string) {
	if len(body) == 0 {
		return "", ""
	}
	var payload struct {
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := jsonx.Unmarshal(body, &payload); err != nil {
		return "", sanitizeLogValue(string(body), previewLimit)
	}
	if payload.Error != nil {
		errType = strings.TrimSpace(payload.Error.Type)
		if errType == "" {
			errType = stringifyCode(payload.Error.Code)
		}
		errMessage = payload.Error.Message
	}
	if errMessage == "" {
		errMessage = payload.Message
	}
	return sanitizeLogValue(errType, 64), sanitizeLogValue(errMessage, previewLimit)
}

func stringifyCode(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// upstreamError turns a non-2xx response into a classified error.
func upstreamError(operation string, status int, body []byte) error {
	errType, message := parseUpstreamError(body)
	detail := fmt.Sprintf("%s: upstream status %d", operation, status)
	if errType != "" {
		detail += " (" + errType + ")"
	}
	if message != "" {
		detail += ": " + message
	}
	return marcoerrors.FromHTTPStatus(status, errors.New(detail))
}
