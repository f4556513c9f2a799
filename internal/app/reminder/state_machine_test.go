package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "marco/internal/domain/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedExtractor(intent domain.ParsedIntent) domain.IntentExtractor {
	return extractorFunc(func(context.Context, string, string) domain.ExtractionResult {
		return domain.OK(intent)
	})
}

func newMachine(t *testing.T, extractor domain.IntentExtractor, reg Inserter, clock domain.Clock, reprompt bool) *ConfirmationStateMachine {
	t.Helper()
	return NewConfirmationStateMachine(
		extractor,
		NewMemoryPendingStore(30*time.Minute, clock),
		reg,
		MachineConfig{ExtractTimeout: time.Second, RepromptUnrecognized: reprompt},
		WithMachineClock(clock),
	)
}

// Scenario A: extraction, summary, "yes", one reminder firing ten minutes early.
func TestScenarioConfirmCreatesReminder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	tomorrow5pm := time.Date(2026, 5, 11, 17, 0, 0, 0, time.UTC)
	reg := NewRegistry(nil, WithRegistryClock(clock))
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: "call mom", EventTime: tomorrow5pm, LeadMinutes: 10}), reg, clock, true)

	res, err := m.RequestReminder(ctx, 42, "remind me to call mom tomorrow at 5pm", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionOK, res.Status)
	assert.Contains(t, res.Summary, "📌 Task: call mom")
	assert.Contains(t, res.Summary, "🕒 When: 2026-05-11 17:00")
	assert.Contains(t, res.Summary, "🔔 Reminder: 10 min before")

	reply, err := m.Reply(ctx, 42, "  YES ", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, reply.Outcome)
	assert.Equal(t, "✅ Reminder set!", reply.Message)
	require.NotNil(t, reply.Reminder)

	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, int64(42), all[0].UserID)
	assert.Equal(t, time.Date(2026, 5, 11, 16, 50, 0, 0, time.UTC), all[0].FireTime)
	assert.False(t, all[0].Fired)

	_, pending, err := m.Pending(ctx, 42)
	require.NoError(t, err)
	assert.False(t, pending, "accept returns the user to idle")
}

// Scenario B: "no" clears the pending intent and leaves the registry unchanged.
func TestScenarioRejectClearsPending(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	reg := NewRegistry(nil)
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: "gym", EventTime: base.Add(time.Hour)}), reg, clock, true)

	_, err := m.RequestReminder(ctx, 1, "gym in an hour", "")
	require.NoError(t, err)

	reply, err := m.Reply(ctx, 1, "No", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, reply.Outcome)
	assert.Equal(t, "❌ Okay, reminder canceled.", reply.Message)
	assert.Equal(t, 0, reg.Len())

	reply, err = m.Reply(ctx, 1, "yes", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPending, reply.Outcome)
	assert.Empty(t, reply.Message)
}

// Scenario C: a failing extractor still yields a pending intent for the raw text.
func TestScenarioExtractorFailureDegrades(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	panicking := extractorFunc(func(context.Context, string, string) domain.ExtractionResult {
		panic("backend exploded")
	})
	m := newMachine(t, panicking, NewRegistry(nil), clock, true)

	res, err := m.RequestReminder(ctx, 9, "x", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionDegraded, res.Status)
	assert.Equal(t, "x", res.Intent.Task)
	assert.Equal(t, base.Add(time.Hour), res.Intent.EventTime)
	assert.Equal(t, 10, res.Intent.LeadMinutes)

	pending, ok, err := m.Pending(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", pending.Intent.Task)
}

func TestBlankRequestCanStillBeConfirmed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	reg := NewRegistry(nil, WithRegistryClock(clock))
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: " ", EventTime: base.Add(time.Hour)}), reg, clock, true)

	res, err := m.RequestReminder(ctx, 3, "   ", "")
	require.NoError(t, err)
	assert.Equal(t, domain.UntitledTask, res.Intent.Task)

	reply, err := m.Reply(ctx, 3, "yes", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, reply.Outcome)
	assert.Equal(t, 1, reg.Len())
}

func TestExtractorTimeoutDegrades(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	slow := extractorFunc(func(ctx context.Context, raw, _ string) domain.ExtractionResult {
		<-ctx.Done()
		return domain.Degraded(domain.DegradedIntent(raw, clock.Now(), domain.LocaleEnglish), ctx.Err().Error())
	})
	m := NewConfirmationStateMachine(slow, NewMemoryPendingStore(0, clock), NewRegistry(nil),
		MachineConfig{ExtractTimeout: 20 * time.Millisecond}, WithMachineClock(clock))

	res, err := m.RequestReminder(ctx, 1, "slow", "")
	require.NoError(t, err)
	assert.True(t, res.Status == domain.ExtractionDegraded)
	assert.Equal(t, "slow", res.Intent.Task)
}

// P2: a second request overwrites the first; only the latest is confirmable.
func TestLatestRequestOverwritesPending(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	reg := NewRegistry(nil)
	extractor := extractorFunc(func(_ context.Context, raw, _ string) domain.ExtractionResult {
		return domain.OK(domain.ParsedIntent{Task: raw, EventTime: base.Add(2 * time.Hour), LeadMinutes: 5})
	})
	m := newMachine(t, extractor, reg, clock, true)

	_, err := m.RequestReminder(ctx, 5, "first", "")
	require.NoError(t, err)
	_, err = m.RequestReminder(ctx, 5, "second", "")
	require.NoError(t, err)

	_, err = m.Reply(ctx, 5, "yes", "")
	require.NoError(t, err)
	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Task)
}

func TestOverlappingRequestsLaterOneWins(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	release := make(chan struct{})
	started := make(chan struct{})
	extractor := extractorFunc(func(_ context.Context, raw, _ string) domain.ExtractionResult {
		if raw == "older" {
			close(started)
			<-release
		}
		return domain.OK(domain.ParsedIntent{Task: raw, EventTime: base.Add(time.Hour)})
	})
	m := newMachine(t, extractor, NewRegistry(nil), clock, true)

	var wg sync.WaitGroup
	var older RequestResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		older, _ = m.RequestReminder(ctx, 3, "older", "")
	}()
	<-started

	newer, err := m.RequestReminder(ctx, 3, "newer", "")
	require.NoError(t, err)
	assert.False(t, newer.Superseded)

	close(release)
	wg.Wait()
	assert.True(t, older.Superseded)
	assert.Empty(t, older.Summary)

	pending, ok, err := m.Pending(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "newer", pending.Intent.Task)
}

func TestUnrecognizedReplyKeepsPending(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	intent := domain.ParsedIntent{Task: "t", EventTime: base.Add(time.Hour)}

	for _, reprompt := range []bool{true, false} {
		m := newMachine(t, fixedExtractor(intent), NewRegistry(nil), clock, reprompt)
		_, err := m.RequestReminder(ctx, 1, "t", "")
		require.NoError(t, err)

		reply, err := m.Reply(ctx, 1, "maybe later", "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnrecognized, reply.Outcome)
		if reprompt {
			assert.NotEmpty(t, reply.Message)
		} else {
			assert.Empty(t, reply.Message, "silent when reprompt is disabled")
		}

		_, ok, err := m.Pending(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestArabicFlowIsLocalized(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	reg := NewRegistry(nil)
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: "شرب الماء", EventTime: base.Add(time.Hour), LeadMinutes: 15}), reg, clock, true)

	res, err := m.RequestReminder(ctx, 8, "ذكرني بشرب الماء", "")
	require.NoError(t, err)
	assert.Contains(t, res.Summary, "📌 المهمة: شرب الماء")
	assert.Contains(t, res.Summary, "قبل 15 دقيقة")

	reply, err := m.Reply(ctx, 8, "نعم", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, reply.Outcome)
	assert.Equal(t, "✅ تم ضبط التذكير!", reply.Message)
}

func TestInsertFailureRestoresPending(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	store := &memorySnapshotStore{fail: errDiskFull}
	reg := NewRegistry(store)
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: "t", EventTime: base.Add(time.Hour)}), reg, clock, true)

	_, err := m.RequestReminder(ctx, 2, "t", "")
	require.NoError(t, err)

	reply, err := m.Reply(ctx, 2, "yes", "")
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, OutcomeSaveFailed, reply.Outcome)
	assert.NotEmpty(t, reply.Message)

	store.setFail(nil)
	reply, err = m.Reply(ctx, 2, "yes", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, reply.Outcome)
	assert.Equal(t, 1, reg.Len())
}

func TestPendingExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	m := newMachine(t, fixedExtractor(domain.ParsedIntent{Task: "t", EventTime: base.Add(time.Hour)}), NewRegistry(nil), clock, true)

	_, err := m.RequestReminder(ctx, 4, "t", "")
	require.NoError(t, err)
	clock.Advance(31 * time.Minute)

	reply, err := m.Reply(ctx, 4, "yes", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPending, reply.Outcome)
}

func TestUsersDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(base)
	reg := NewRegistry(nil)
	extractor := extractorFunc(func(_ context.Context, raw, _ string) domain.ExtractionResult {
		return domain.OK(domain.ParsedIntent{Task: raw, EventTime: base.Add(time.Hour)})
	})
	m := newMachine(t, extractor, reg, clock, true)

	var wg sync.WaitGroup
	for user := int64(1); user <= 20; user++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := m.RequestReminder(ctx, user, "task", "")
			assert.NoError(t, err)
			_, err = m.Reply(ctx, user, "yes", "")
			assert.NoError(t, err)
		}(user)
	}
	wg.Wait()
	assert.Equal(t, 20, reg.Len())
	assert.Equal(t, 0, m.locks.size())
}
