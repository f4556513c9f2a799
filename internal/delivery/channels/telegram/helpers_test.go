package telegram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	appreminder "marco/internal/app/reminder"
	domain "marco/internal/domain/reminder"
	"marco/internal/infra/llm"
	"marco/internal/shared/logging"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []sentMessage
	files   map[string]File
	content map[string][]byte
	sendErr error
}

func newFakeBot() *fakeBot {
	return &fakeBot{files: map[string]File{}, content: map[string][]byte{}}
}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (b *fakeBot) GetFile(_ context.Context, fileID string) (File, error) {
	file, ok := b.files[fileID]
	if !ok {
		return File{}, errors.New("file not found")
	}
	return file, nil
}

func (b *fakeBot) DownloadFile(_ context.Context, file File) ([]byte, error) {
	return b.content[file.FilePath], nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.text)
	}
	return out
}

func (b *fakeBot) last() string {
	texts := b.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type transcriberFunc func(ctx context.Context, filename string, audio io.Reader) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	return f(ctx, filename, audio)
}

type harness struct {
	gateway  *Gateway
	bot      *fakeBot
	registry *appreminder.Registry
	now      time.Time
}

func newHarness(t *testing.T, cfg GatewayConfig, opts ...GatewayOption) *harness {
	t.Helper()
	clock := domain.ClockFunc(func() time.Time { return base })
	registry := appreminder.NewRegistry(nil, appreminder.WithRegistryClock(clock))
	machine := appreminder.NewConfirmationStateMachine(
		llm.NewRuleExtractor(clock),
		appreminder.NewMemoryPendingStore(30*time.Minute, clock),
		registry,
		appreminder.MachineConfig{ExtractTimeout: time.Second, RepromptUnrecognized: true},
		appreminder.WithMachineClock(clock),
	)
	bot := newFakeBot()
	opts = append([]GatewayOption{WithGatewayLogger(logging.Nop()), withNow(func() time.Time { return base })}, opts...)
	gateway, err := NewGateway(cfg, machine, bot, opts...)
	require.NoError(t, err)
	return &harness{gateway: gateway, bot: bot, registry: registry, now: base}
}

func textUpdate(updateID, userID int64, text string) Update {
	return Update{
		UpdateID: updateID,
		Message: &Message{
			MessageID: updateID,
			From:      &User{ID: userID, FirstName: "Test"},
			Chat:      Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}

type countingMetrics struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (m *countingMetrics) RecordUpdate(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kinds == nil {
		m.kinds = map[string]int{}
	}
	m.kinds[kind]++
}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kinds[kind]
}
