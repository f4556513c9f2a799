package telegram

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	appreminder "marco/internal/app/reminder"
	domain "marco/internal/domain/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSendsGreeting(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	require.NoError(t, h.gateway.HandleUpdate(context.Background(), textUpdate(1, 10, "/start")))
	assert.Equal(t, appreminder.GreetingMessage(domain.LocaleEnglish), h.bot.last())
}

func TestRemindWithoutTextAsksForDetails(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	require.NoError(t, h.gateway.HandleUpdate(context.Background(), textUpdate(1, 10, "/remind")))
	assert.Equal(t, "Please specify what you want to be reminded about.", h.bot.last())
}

func TestRemindConfirmFlow(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	ctx := context.Background()

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(1, 10, "/remind@marco_bot call the dentist in 2 hours")))
	summary := h.bot.last()
	assert.Contains(t, summary, "📌 Task: call the dentist")
	assert.Contains(t, summary, "🕒 When: 2026-04-20 11:00")
	assert.Contains(t, summary, "🔔 Reminder: 10 min before")

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(2, 10, "maybe")))
	assert.Equal(t, appreminder.RepromptMessage(domain.LocaleEnglish), h.bot.last())

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(3, 10, "YES")))
	assert.Equal(t, "✅ Reminder set!", h.bot.last())

	reminders := h.registry.ForUser(10)
	require.Len(t, reminders, 1)
	assert.Equal(t, "call the dentist", reminders[0].Task)
	assert.True(t, reminders[0].FireTime.Equal(base.Add(110*time.Minute)))
}

func TestRemindRejectFlowInArabic(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	ctx := context.Background()

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(1, 20, "/remind اتصل بأمي in 1 hour")))
	assert.Contains(t, h.bot.last(), "📌 المهمة: اتصل بأمي")

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(2, 20, "لا")))
	assert.Equal(t, "❌ تم إلغاء التذكير.", h.bot.last())
	assert.Zero(t, h.registry.Len())
}

func TestTextWithoutPendingIsSilent(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	require.NoError(t, h.gateway.HandleUpdate(context.Background(), textUpdate(1, 30, "yes")))
	assert.Empty(t, h.bot.texts())
}

func TestDuplicateUpdatesAreDropped(t *testing.T) {
	metrics := &countingMetrics{}
	h := newHarness(t, GatewayConfig{}, WithUpdateMetrics(metrics))
	ctx := context.Background()

	update := textUpdate(77, 10, "/start")
	require.NoError(t, h.gateway.HandleUpdate(ctx, update))
	require.NoError(t, h.gateway.HandleUpdate(ctx, update))
	assert.Len(t, h.bot.texts(), 1)
	assert.Equal(t, 1, metrics.count("duplicate"))
	assert.Equal(t, 1, metrics.count("start"))
}

func TestRateLimitPerUser(t *testing.T) {
	h := newHarness(t, GatewayConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(i, 40, "/start")))
	}
	assert.Len(t, h.bot.texts(), 2)

	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(5, 41, "/start")))
	assert.Len(t, h.bot.texts(), 3, "other users keep their own budget")
}

func TestIgnoresBotsAndEmptyUpdates(t *testing.T) {
	h := newHarness(t, GatewayConfig{})
	ctx := context.Background()

	require.NoError(t, h.gateway.HandleUpdate(ctx, Update{UpdateID: 1}))
	botUpdate := textUpdate(2, 50, "/start")
	botUpdate.Message.From.IsBot = true
	require.NoError(t, h.gateway.HandleUpdate(ctx, botUpdate))
	require.NoError(t, h.gateway.HandleUpdate(ctx, textUpdate(3, 50, "/unknown")))
	assert.Empty(t, h.bot.texts())
}

func TestVoiceIsTranscribedEchoedAndRequested(t *testing.T) {
	var gotName string
	var gotAudio string
	transcriber := transcriberFunc(func(_ context.Context, filename string, audio io.Reader) (string, error) {
		data, _ := io.ReadAll(audio)
		gotName, gotAudio = filename, string(data)
		return " water the plants in 30 minutes ", nil
	})
	h := newHarness(t, GatewayConfig{}, WithTranscriber(transcriber))
	h.bot.files["voice-1"] = File{FileID: "voice-1", FilePath: "voice/file_7.oga"}
	h.bot.content["voice/file_7.oga"] = []byte("OggS")

	update := Update{UpdateID: 9, Message: &Message{
		From:  &User{ID: 60},
		Chat:  Chat{ID: 60},
		Voice: &Voice{FileID: "voice-1", Duration: 3},
	}}
	require.NoError(t, h.gateway.HandleUpdate(context.Background(), update))

	assert.Equal(t, "file_7.oga", gotName)
	assert.Equal(t, "OggS", gotAudio)
	texts := h.bot.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "🗣 You said: water the plants in 30 minutes", texts[0])
	assert.Contains(t, texts[1], "📌 Task: water the plants")
}

func TestVoiceFailureIsReported(t *testing.T) {
	transcriber := transcriberFunc(func(context.Context, string, io.Reader) (string, error) {
		return "", errors.New("upstream down")
	})
	h := newHarness(t, GatewayConfig{}, WithTranscriber(transcriber))
	h.bot.files["v"] = File{FileID: "v", FilePath: "voice/v.oga"}

	update := Update{UpdateID: 1, Message: &Message{From: &User{ID: 61}, Chat: Chat{ID: 61}, Voice: &Voice{FileID: "v"}}}
	require.NoError(t, h.gateway.HandleUpdate(context.Background(), update))
	assert.Equal(t, []string{appreminder.VoiceFailedMessage(domain.LocaleEnglish)}, h.bot.texts())
}

type panickingIntake struct{}

func (panickingIntake) RequestReminder(context.Context, int64, string, string) (appreminder.RequestResult, error) {
	panic("boom")
}

func (panickingIntake) Reply(context.Context, int64, string, string) (appreminder.ReplyResult, error) {
	panic("boom")
}

func TestHandlerPanicIsContained(t *testing.T) {
	bot := newFakeBot()
	gateway, err := NewGateway(GatewayConfig{}, panickingIntake{}, bot, WithGatewayLogger(nil))
	require.NoError(t, err)

	err = gateway.HandleUpdate(context.Background(), textUpdate(1, 70, "/remind x in 1 hour"))
	require.Error(t, err)
	require.NoError(t, gateway.HandleUpdate(context.Background(), textUpdate(2, 70, "/start")))
	assert.Len(t, bot.texts(), 1)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, cmd, args string
	}{
		{"/start", "start", ""},
		{"/remind drink water", "remind", "drink water"},
		{"/Remind@marco_bot  drink water ", "remind", "drink water"},
		{"/remind\ndrink water", "remind", "drink water"},
		{"/remind@marco_bot\ndrink water at 5", "remind", "drink water at 5"},
		{"/remind\tstretch", "remind", "stretch"},
	}
	for _, tc := range cases {
		cmd, args := parseCommand(tc.in)
		assert.Equal(t, tc.cmd, cmd, tc.in)
		assert.Equal(t, tc.args, args, tc.in)
	}
}

func TestNotifierLocalizesByTask(t *testing.T) {
	bot := newFakeBot()
	notifier := NewNotifier(bot)
	require.NoError(t, notifier.Notify(context.Background(), 5, "stretch"))
	require.NoError(t, notifier.Notify(context.Background(), 6, "صلاة العصر"))
	assert.Equal(t, []sentMessage{
		{chatID: 5, text: "⏰ Reminder: stretch"},
		{chatID: 6, text: "⏰ تذكير: صلاة العصر"},
	}, bot.sent)
}
