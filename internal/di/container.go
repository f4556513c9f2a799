package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	appreminder "marco/internal/app/reminder"
	"marco/internal/app/scheduler"
	"marco/internal/delivery/channels/telegram"
	serverHTTP "marco/internal/delivery/server/http"
	domain "marco/internal/domain/reminder"
	"marco/internal/infra/observability"
	"marco/internal/shared/config"
	"marco/internal/shared/logging"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Container holds the wired application. One container owns one registry,
// one pending store and one dispatcher per process.
type Container struct {
	Config     config.Config
	Store      domain.SnapshotStore
	Registry   *appreminder.Registry
	Pending    domain.PendingStore
	Machine    *appreminder.ConfirmationStateMachine
	Dispatcher *scheduler.Dispatcher
	Notifier   domain.Notifier
	Bot        *telegram.Client  // nil without a bot token
	Gateway    *telegram.Gateway // nil without a bot token
	Poller     *telegram.Poller  // nil unless telegram.mode is polling
	Router     http.Handler
	Metrics    *observability.Metrics // nil when metrics are disabled
	Prometheus *prometheus.Registry

	logger   logging.Logger
	closers  []closer
	started  bool
	shutdown bool
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Start begins dispatching. It returns immediately.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	c.started = true
	return nil
}

// Serve runs the dispatcher, the HTTP server and, in polling mode, the update
// poller until ctx is cancelled or one of them fails.
func (c *Container) Serve(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	if err := c.Start(groupCtx); err != nil {
		return err
	}
	group.Go(func() error {
		<-c.Dispatcher.Done()
		return nil
	})

	server := serverHTTP.NewServer(c.Config.Server.Port, c.Router)
	group.Go(func() error {
		return serverHTTP.Serve(groupCtx, server, c.logger)
	})

	if c.Poller != nil {
		group.Go(func() error {
			return c.Poller.Run(groupCtx)
		})
	}

	if purger, ok := c.Pending.(pendingPurger); ok {
		group.Go(func() error {
			c.purgePending(groupCtx, purger)
			return nil
		})
	}

	err := group.Wait()
	c.Dispatcher.Stop()
	return err
}

type pendingPurger interface {
	Purge() int
}

// purgePending drops expired confirmations from in-memory stores once per TTL.
func (c *Container) purgePending(ctx context.Context, store pendingPurger) {
	interval := c.Config.Confirmation.PendingTTL
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Purge(); n > 0 {
				c.logger.Debug("DI: purged %d expired pending confirmation(s)", n)
			}
		}
	}
}

// Shutdown stops a started dispatcher, persists unsaved registry changes and
// releases resources in reverse order of acquisition. Safe to call more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.shutdown {
		return nil
	}
	c.shutdown = true

	var errs []error
	if c.started {
		c.Dispatcher.Stop()
	}
	if c.Registry.Dirty() {
		if err := c.Registry.Persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(ctx); err != nil {
			c.logger.Warn("DI: close %s: %v", cl.name, err)
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}
	c.logger.Info("DI: container shut down")
	return errors.Join(errs...)
}
