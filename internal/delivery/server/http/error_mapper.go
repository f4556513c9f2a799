package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	errMissingUserID = errors.New("user_id must be a positive integer")
	errBadAsOf       = errors.New("as_of must be an RFC 3339 timestamp")
)

// parseUserID reads an optional user_id query value. Zero means no filter.
func parseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errMissingUserID
	}
	return userID, nil
}

func parseAsOf(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	asOf, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errBadAsOf
	}
	return asOf, nil
}

// statusFor maps query errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingUserID), errors.Is(err, errBadAsOf):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
