package telegram

import (
	"context"
	"errors"
	"time"

	"marco/internal/shared/logging"
)

// UpdateSource is the long-polling subset of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	DeleteWebhook(ctx context.Context) error
}

// UpdateHandler consumes one update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// Poller feeds getUpdates results to a handler until its context ends.
type Poller struct {
	source      UpdateSource
	handler     UpdateHandler
	pollTimeout time.Duration
	maxBackoff  time.Duration
	logger      logging.Logger
	offset      int64
}

// NewPoller creates a poller. pollTimeout is the server-side long-poll wait.
func NewPoller(source UpdateSource, handler UpdateHandler, pollTimeout time.Duration, logger logging.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Poller{
		source:      source,
		handler:     handler,
		pollTimeout: pollTimeout,
		maxBackoff:  30 * time.Second,
		logger:      logging.OrNop(logger),
	}
}

// Run blocks until ctx is cancelled. Handler errors never stop the loop and
// the offset always advances past a handled update.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.source.DeleteWebhook(ctx); err != nil {
		p.logger.Warn("TelegramPoller: delete webhook: %v", err)
	}
	p.logger.Info("TelegramPoller: polling (timeout=%s)", p.pollTimeout)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, p.offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			p.logger.Warn("TelegramPoller: getUpdates failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, p.maxBackoff)
			continue
		}
		backoff = time.Second

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			_ = p.handler.HandleUpdate(ctx, update)
		}
	}
}
