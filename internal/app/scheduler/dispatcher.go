package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/shared/async"
	marcoerrors "marco/internal/shared/errors"
	"marco/internal/shared/logging"
	id "marco/internal/shared/utils/id"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("marco/app/scheduler")

// Registry is the subset of the reminder registry the dispatcher drives.
type Registry interface {
	DueAsOf(now time.Time) []domain.Reminder
	MarkFired(ctx context.Context, reminderID string) error
	RecordFailure(ctx context.Context, reminderID string, maxAttempts int) (bool, error)
	Flush(ctx context.Context) error
	Persist(ctx context.Context) error
}

// Metrics receives dispatch counters.
type Metrics interface {
	RecordTick(duration time.Duration, due int)
	RecordNotify(result string)
	RecordDeadLetter()
}

// DeadLetterHandler is called once when a reminder exhausts its notify attempts.
type DeadLetterHandler func(ctx context.Context, rem domain.Reminder, lastErr error)

// Config holds dispatcher tuning.
type Config struct {
	Interval          time.Duration
	NotifyTimeout     time.Duration
	MaxNotifyAttempts int // 0 retries forever
	Concurrency       int // notifier calls in flight per tick; 1 keeps fire order
	PersistTimeout    time.Duration
}

// TickReport summarizes one dispatch tick.
type TickReport struct {
	Due          int
	Fired        int
	Failed       int
	DeadLettered int
}

// Dispatcher wakes due reminders on a fixed cadence and hands them to the notifier.
// Delivery is at-least-once: a reminder is marked fired only after the notifier
// reported success.
type Dispatcher struct {
	cron     *cron.Cron
	registry Registry
	notifier domain.Notifier
	clock    domain.Clock
	config   Config
	logger   logging.Logger
	metrics  Metrics
	onDead   DeadLetterHandler

	mu        sync.Mutex
	started   bool
	runCtx    context.Context
	cancelRun context.CancelFunc
	stopped   chan struct{}
	stopOnce  sync.Once
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

func WithClock(clock domain.Clock) Option {
	return func(d *Dispatcher) { d.clock = domain.ClockOrSystem(clock) }
}

func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNop(logger) }
}

func WithMetrics(metrics Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

func WithDeadLetterHandler(handler DeadLetterHandler) Option {
	return func(d *Dispatcher) {
		if handler != nil {
			d.onDead = handler
		}
	}
}

// New creates a Dispatcher. Call Start to begin ticking.
func New(cfg Config, registry Registry, notifier domain.Notifier, opts ...Option) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	runCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		registry:  registry,
		notifier:  notifier,
		clock:     domain.SystemClock{},
		config:    cfg,
		runCtx:    runCtx,
		cancelRun: cancel,
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.NewCategorizedLogger(logging.CategoryDispatch, "dispatch")
	}
	if d.onDead == nil {
		d.onDead = d.logDeadLetter
	}
	d.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{d.logger}),
		cron.SkipIfStillRunning(cronLogger{d.logger}),
	))
	return d
}

// Start schedules the tick and returns immediately. Cancelling ctx stops the dispatcher.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	spec := fmt.Sprintf("@every %s", d.config.Interval)
	if _, err := d.cron.AddFunc(spec, func() { d.RunOnce(d.runCtx) }); err != nil {
		return fmt.Errorf("dispatch: schedule %q: %w", spec, err)
	}
	d.cron.Start()
	d.started = true
	d.logger.Info("Dispatch: started (interval=%s, max_attempts=%d, concurrency=%d)",
		d.config.Interval, d.config.MaxNotifyAttempts, d.config.Concurrency)

	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-d.stopped:
		}
	}()
	return nil
}

// Stop waits for the in-flight tick to finish, persists the registry and
// closes Done. Safe to call multiple times.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Dispatch: stopping...")
		stopCtx := d.cron.Stop()
		<-stopCtx.Done()
		d.cancelRun()

		ctx, cancel := context.WithTimeout(context.Background(), d.config.PersistTimeout)
		defer cancel()
		if err := d.registry.Persist(ctx); err != nil {
			d.logger.Error("Dispatch: final persist failed: %v", err)
		}
		close(d.stopped)
		d.logger.Info("Dispatch: stopped")
	})
}

// Done is closed once Stop has completed.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// RunOnce executes a single dispatch tick.
func (d *Dispatcher) RunOnce(ctx context.Context) TickReport {
	start := time.Now()
	ctx, logID := id.EnsureLogID(ctx, id.NewLogID)
	logger := logging.WithLogID(d.logger, logID)
	ctx, span := tracer.Start(ctx, "dispatch.tick")
	defer span.End()

	now := d.clock.Now()
	due := d.registry.DueAsOf(now)
	report := TickReport{Due: len(due)}
	span.SetAttributes(attribute.Int("dispatch.due", len(due)))

	if len(due) > 0 {
		logger.Info("Dispatch: %d reminder(s) due as of %s", len(due), now.Format(time.RFC3339))
		outcomes := make([]outcome, len(due))
		if d.config.Concurrency == 1 {
			for i, rem := range due {
				outcomes[i] = d.dispatch(ctx, logger, rem)
			}
		} else {
			var g errgroup.Group
			g.SetLimit(d.config.Concurrency)
			for i, rem := range due {
				g.Go(func() error {
					outcomes[i] = d.dispatch(ctx, logger, rem)
					return nil
				})
			}
			_ = g.Wait()
		}
		for _, o := range outcomes {
			switch o {
			case outcomeFired:
				report.Fired++
			case outcomeDeadLettered:
				report.Failed++
				report.DeadLettered++
			default:
				report.Failed++
			}
		}
	}

	if err := d.registry.Flush(ctx); err != nil {
		span.RecordError(err)
		logger.Error("Dispatch: flush failed: %v", err)
	}
	if d.metrics != nil {
		d.metrics.RecordTick(time.Since(start), len(due))
	}
	return report
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeFired
	outcomeDeadLettered
)

// dispatch delivers one reminder. Panics and errors stay local to the item.
func (d *Dispatcher) dispatch(ctx context.Context, logger logging.Logger, rem domain.Reminder) outcome {
	ctx, span := tracer.Start(ctx, "dispatch.notify")
	defer span.End()
	span.SetAttributes(attribute.String("reminder.id", rem.ID), attribute.Int64("user.id", rem.UserID))

	notifyErr := d.notify(ctx, rem)
	if notifyErr == nil {
		d.recordNotify("success")
		if err := d.registry.MarkFired(ctx, rem.ID); err != nil {
			logger.Error("Dispatch: mark %s fired: %v", rem.ID, err)
		}
		logger.Info("Dispatch: delivered %s to user %d", rem.ID, rem.UserID)
		return outcomeFired
	}

	span.RecordError(notifyErr)
	span.SetStatus(codes.Error, "notify")
	d.recordNotify("failure")
	logger.Warn("Dispatch: notify %s (user %d, attempt %d, %s): %v",
		rem.ID, rem.UserID, rem.Attempts+1, errorKind(notifyErr), notifyErr)

	dead, err := d.registry.RecordFailure(ctx, rem.ID, d.config.MaxNotifyAttempts)
	if err != nil {
		logger.Error("Dispatch: record failure for %s: %v", rem.ID, err)
	}
	if !dead {
		return outcomeFailed
	}
	if d.metrics != nil {
		d.metrics.RecordDeadLetter()
	}
	rem.Attempts++
	rem.DeadLettered = true
	async.Safe(logger, "dead-letter", func() { d.onDead(ctx, rem, notifyErr) })
	return outcomeDeadLettered
}

func (d *Dispatcher) notify(ctx context.Context, rem domain.Reminder) (err error) {
	if d.notifier == nil {
		return fmt.Errorf("dispatch: no notifier configured")
	}
	notifyCtx, cancel := context.WithTimeout(ctx, d.config.NotifyTimeout)
	defer cancel()
	if ok := async.Safe(d.logger, "notify", func() { err = d.notifier.Notify(notifyCtx, rem.UserID, rem.Task) }); !ok {
		return fmt.Errorf("dispatch: notifier panicked")
	}
	return err
}

func (d *Dispatcher) recordNotify(result string) {
	if d.metrics != nil {
		d.metrics.RecordNotify(result)
	}
}

func (d *Dispatcher) logDeadLetter(_ context.Context, rem domain.Reminder, lastErr error) {
	d.logger.Warn("Dispatch: giving up on %s for user %d after %d attempts: %v", rem.ID, rem.UserID, rem.Attempts, lastErr)
}

func errorKind(err error) string {
	switch marcoerrors.GetErrorType(err) {
	case marcoerrors.ErrorTypeTransient:
		return "transient"
	case marcoerrors.ErrorTypeDegraded:
		return "degraded"
	default:
		return "permanent"
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("Dispatch: cron %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("Dispatch: cron %s: %v %v", msg, err, keysAndValues)
}
