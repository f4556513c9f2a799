package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/shared/async"
	"marco/internal/shared/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("marco/app/reminder")

// ReplyOutcome is what a confirmation reply did.
type ReplyOutcome string

const (
	OutcomeNotPending   ReplyOutcome = "not_pending"
	OutcomeUnrecognized ReplyOutcome = "unrecognized"
	OutcomeAccepted     ReplyOutcome = "accepted"
	OutcomeRejected     ReplyOutcome = "rejected"
	OutcomeSaveFailed   ReplyOutcome = "save_failed"
)

// RequestResult is returned by RequestReminder. Superseded is set when a newer
// request for the same user replaced this one while it was being extracted;
// callers should not present its summary.
type RequestResult struct {
	Summary    string
	Intent     domain.ParsedIntent
	Status     domain.ExtractionStatus
	Superseded bool
}

// ReplyResult is returned by Reply. Message is empty when nothing should be sent.
type ReplyResult struct {
	Outcome  ReplyOutcome
	Message  string
	Reminder *domain.Reminder
}

// Inserter is the registry capability the state machine needs.
type Inserter interface {
	Insert(ctx context.Context, rem domain.Reminder) (string, error)
}

// IntakeMetrics receives intake counters.
type IntakeMetrics interface {
	RecordExtraction(status string)
	RecordReply(outcome string)
}

// MachineConfig tunes the confirmation protocol.
type MachineConfig struct {
	ExtractTimeout       time.Duration
	RepromptUnrecognized bool
}

// ConfirmationStateMachine runs the per-user Idle -> AwaitingConfirmation -> Idle
// protocol. Calls for one user are serialized; different users never contend.
type ConfirmationStateMachine struct {
	extractor domain.IntentExtractor
	pending   domain.PendingStore
	registry  Inserter
	clock     domain.Clock
	cfg       MachineConfig
	logger    logging.Logger
	metrics   IntakeMetrics

	locks *keyedMutex

	genMu   sync.Mutex
	nextGen uint64
	latest  map[int64]*generation
}

type generation struct {
	current  uint64
	inflight int
}

// MachineOption customizes a ConfirmationStateMachine.
type MachineOption func(*ConfirmationStateMachine)

func WithMachineClock(clock domain.Clock) MachineOption {
	return func(m *ConfirmationStateMachine) { m.clock = domain.ClockOrSystem(clock) }
}

func WithMachineLogger(logger logging.Logger) MachineOption {
	return func(m *ConfirmationStateMachine) { m.logger = logging.OrNop(logger) }
}

func WithIntakeMetrics(metrics IntakeMetrics) MachineOption {
	return func(m *ConfirmationStateMachine) { m.metrics = metrics }
}

// NewConfirmationStateMachine wires the protocol to its collaborators.
func NewConfirmationStateMachine(extractor domain.IntentExtractor, pending domain.PendingStore, registry Inserter, cfg MachineConfig, opts ...MachineOption) *ConfirmationStateMachine {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 15 * time.Second
	}
	m := &ConfirmationStateMachine{
		extractor: extractor,
		pending:   pending,
		registry:  registry,
		clock:     domain.SystemClock{},
		cfg:       cfg,
		logger:    logging.Nop(),
		locks:     newKeyedMutex(),
		latest:    make(map[int64]*generation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestReminder extracts an intent from rawText, makes it the user's single
// pending intent and returns the localized summary. The only error is a
// pending-store failure.
func (m *ConfirmationStateMachine) RequestReminder(ctx context.Context, userID int64, rawText, localeHint string) (RequestResult, error) {
	ctx, span := tracer.Start(ctx, "reminder.request")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))
	logger := logging.FromContext(ctx, m.logger)

	gen := m.beginRequest(userID)
	result := m.extract(ctx, rawText, localeHint)
	m.recordExtraction(result.Status)
	span.SetAttributes(attribute.String("extraction.status", string(result.Status)))
	if result.IsDegraded() {
		logger.Warn("Intake: degraded extraction for user %d: %s", userID, result.Reason)
	}

	locale := domain.DetectLocale(rawText, localeHint)
	intent := result.Intent
	intent.Locale = locale

	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.finishRequest(userID, gen) {
		logger.Debug("Intake: request for user %d superseded by a newer one", userID)
		return RequestResult{Intent: intent, Status: result.Status, Superseded: true}, nil
	}
	if err := m.pending.Set(ctx, userID, domain.Pending{Intent: intent, CreatedAt: m.clock.Now()}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pending store")
		return RequestResult{}, fmt.Errorf("intake: store pending intent: %w", err)
	}
	logger.Info("Intake: user %d awaiting confirmation for %q at %s", userID, intent.Task, intent.EventTime.Format(time.RFC3339))
	return RequestResult{
		Summary: SummaryMessage(intent, locale),
		Intent:  intent,
		Status:  result.Status,
	}, nil
}

// extract calls the extractor outside any lock with a bounded timeout. A
// panicking or misbehaving extractor degrades like any other failure.
func (m *ConfirmationStateMachine) extract(ctx context.Context, rawText, localeHint string) domain.ExtractionResult {
	now := m.clock.Now()
	fallback := domain.Degraded(domain.DegradedIntent(rawText, now, domain.DetectLocale(rawText, localeHint)), "extractor unavailable")
	if m.extractor == nil {
		return fallback
	}

	extractCtx, cancel := context.WithTimeout(ctx, m.cfg.ExtractTimeout)
	defer cancel()

	var result domain.ExtractionResult
	ok := async.Safe(m.logger, "intent-extract", func() {
		result = m.extractor.Extract(extractCtx, rawText, localeHint)
	})
	if !ok {
		fallback.Reason = "extractor panicked"
		return fallback
	}
	if result.Status == "" {
		result.Status = domain.ExtractionOK
	}
	if result.Intent.EventTime.IsZero() {
		fallback.Reason = "extractor returned no event time"
		return fallback
	}
	result.Intent = result.Intent.Normalize(rawText)
	return result
}

func (m *ConfirmationStateMachine) beginRequest(userID int64) uint64 {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	m.nextGen++
	g, ok := m.latest[userID]
	if !ok {
		g = &generation{}
		m.latest[userID] = g
	}
	g.current = m.nextGen
	g.inflight++
	return m.nextGen
}

// finishRequest reports whether gen is still the user's latest request.
func (m *ConfirmationStateMachine) finishRequest(userID int64, gen uint64) bool {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	g := m.latest[userID]
	g.inflight--
	latest := g.current == gen
	if g.inflight == 0 {
		delete(m.latest, userID)
	}
	return latest
}

// Reply interprets text as the answer to the user's pending intent.
func (m *ConfirmationStateMachine) Reply(ctx context.Context, userID int64, text, localeHint string) (ReplyResult, error) {
	ctx, span := tracer.Start(ctx, "reminder.reply")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))
	logger := logging.FromContext(ctx, m.logger)

	unlock := m.locks.Lock(userID)
	defer unlock()

	pending, ok, err := m.pending.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return ReplyResult{}, fmt.Errorf("intake: load pending intent: %w", err)
	}
	if !ok {
		return m.replied(ReplyResult{Outcome: OutcomeNotPending}), nil
	}

	locale := pending.Intent.Locale
	if strings.TrimSpace(localeHint) != "" || domain.ContainsArabic(text) {
		locale = domain.DetectLocale(text, localeHint)
	}

	class := ClassifyReply(text)
	span.SetAttributes(attribute.String("reply.class", class.String()))
	switch class {
	case ReplyNegative:
		if err := m.pending.Delete(ctx, userID); err != nil {
			return ReplyResult{}, fmt.Errorf("intake: discard pending intent: %w", err)
		}
		logger.Info("Intake: user %d canceled %q", userID, pending.Intent.Task)
		return m.replied(ReplyResult{Outcome: OutcomeRejected, Message: CanceledMessage(locale)}), nil

	case ReplyAffirmative:
		if err := m.pending.Delete(ctx, userID); err != nil {
			return ReplyResult{}, fmt.Errorf("intake: pop pending intent: %w", err)
		}
		rem := domain.NewReminder(userID, pending.Intent, m.clock.Now())
		reminderID, err := m.registry.Insert(ctx, rem)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert")
			// Keep the intent so the user can confirm again.
			if restoreErr := m.pending.Set(ctx, userID, pending); restoreErr != nil {
				logger.Error("Intake: restore pending intent for user %d: %v", userID, restoreErr)
			}
			logger.Error("Intake: save reminder for user %d: %v", userID, err)
			return m.replied(ReplyResult{Outcome: OutcomeSaveFailed, Message: SaveFailedMessage(locale)}), fmt.Errorf("intake: insert reminder: %w", err)
		}
		rem.ID = reminderID
		logger.Info("Intake: user %d confirmed %s", userID, reminderID)
		return m.replied(ReplyResult{Outcome: OutcomeAccepted, Message: ConfirmedMessage(locale), Reminder: &rem}), nil

	default:
		result := ReplyResult{Outcome: OutcomeUnrecognized}
		if m.cfg.RepromptUnrecognized {
			result.Message = RepromptMessage(locale)
		}
		return m.replied(result), nil
	}
}

// Pending reports the user's current pending intent, if any.
func (m *ConfirmationStateMachine) Pending(ctx context.Context, userID int64) (domain.Pending, bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.pending.Get(ctx, userID)
}

func (m *ConfirmationStateMachine) replied(result ReplyResult) ReplyResult {
	if m.metrics != nil {
		m.metrics.RecordReply(string(result.Outcome))
	}
	return result
}

func (m *ConfirmationStateMachine) recordExtraction(status domain.ExtractionStatus) {
	if m.metrics != nil {
		m.metrics.RecordExtraction(string(status))
	}
}
