package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	marcoerrors "marco/internal/shared/errors"
	jsonx "marco/internal/shared/json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:ABC"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientConfig{Token: testToken, APIBaseURL: srv.URL}, &http.Client{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{Token: "  "}, nil, nil)
	require.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, jsonx.Unmarshal(body, &payload))
		assert.EqualValues(t, 42, payload["chat_id"])
		assert.Equal(t, "⏰ Reminder: stretch", payload["text"])
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42}}}`))
	})
	require.NoError(t, client.SendMessage(context.Background(), 42, "⏰ Reminder: stretch"))
}

func TestSendMessageClassifiesAPIErrors(t *testing.T) {
	t.Run("blocked user is permanent", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
		})
		err := client.SendMessage(context.Background(), 1, "hi")
		require.Error(t, err)
		assert.True(t, marcoerrors.IsPermanent(err))
		assert.Contains(t, err.Error(), "blocked")
	})

	t.Run("flood control is transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`))
		})
		err := client.SendMessage(context.Background(), 1, "hi")
		var transient *marcoerrors.TransientError
		require.ErrorAs(t, err, &transient)
		assert.Equal(t, 3, transient.RetryAfter)
	})

	t.Run("gateway errors without envelope are transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		})
		err := client.SendMessage(context.Background(), 1, "hi")
		assert.True(t, marcoerrors.IsTransient(err))
	})
}

func TestGetUpdatesAndDownload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot" + testToken + "/getUpdates":
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"offset":5`)
			assert.Contains(t, string(body), `"timeout":30`)
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":5,"message":{"message_id":1,"from":{"id":9},"chat":{"id":9},"text":"/start"}}]}`))
		case "/bot" + testToken + "/getFile":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"abc","file_size":4,"file_path":"voice/file_1.oga"}}`))
		case "/file/bot" + testToken + "/voice/file_1.oga":
			_, _ = w.Write([]byte("OggS"))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	updates, err := client.GetUpdates(ctx, 5, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(5), updates[0].UpdateID)
	assert.Equal(t, "/start", updates[0].Message.Text)

	file, err := client.GetFile(ctx, "abc")
	require.NoError(t, err)
	data, err := client.DownloadFile(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, "OggS", string(data))

	_, err = client.DownloadFile(ctx, File{FilePath: "x", FileSize: maxDownloadBytes + 1})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestRedactHidesToken(t *testing.T) {
	err := redact(io.ErrUnexpectedEOF, testToken)
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	err = redact(assert.AnError, "")
	assert.Equal(t, assert.AnError, err)

	wrapped := redact(errors.New("Post https://api.telegram.org/bot"+testToken+"/sendMessage: EOF"), testToken)
	assert.False(t, strings.Contains(wrapped.Error(), testToken))
	assert.Contains(t, wrapped.Error(), "/bot<token>/sendMessage")
}
