package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu       sync.Mutex
	batches  [][]Update
	offsets  []int64
	failures int
}

func (s *scriptedSource) DeleteWebhook(context.Context) error { return nil }

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("connection reset by peer")
	}
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

type recordingHandler struct {
	mu  sync.Mutex
	ids []int64
	all chan struct{}
	n   int
}

func (h *recordingHandler) HandleUpdate(_ context.Context, update Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, update.UpdateID)
	if len(h.ids) == h.n {
		close(h.all)
	}
	return errors.New("handler errors do not stop polling")
}

func TestPollerAdvancesOffsetAndStops(t *testing.T) {
	source := &scriptedSource{
		failures: 1,
		batches: [][]Update{
			{{UpdateID: 10}, {UpdateID: 11}},
			{{UpdateID: 12}},
		},
	}
	handler := &recordingHandler{all: make(chan struct{}), n: 3}
	poller := NewPoller(source, handler, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case <-handler.all:
	case <-time.After(5 * time.Second):
		t.Fatal("updates were not delivered")
	}
	require.Eventually(t, func() bool { return len(source.seenOffsets()) == 4 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	assert.Equal(t, []int64{10, 11, 12}, handler.ids)
	assert.Equal(t, []int64{0, 0, 12, 13}, source.seenOffsets())
}
