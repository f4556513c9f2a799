package telegram

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	appreminder "marco/internal/app/reminder"
	domain "marco/internal/domain/reminder"
	"marco/internal/shared/async"
	"marco/internal/shared/logging"
	id "marco/internal/shared/utils/id"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	updateDedupCacheSize = 2048
	updateDedupTTL       = 10 * time.Minute
)

var tracer = otel.Tracer("marco/delivery/telegram")

// Intake is the confirmation protocol the gateway drives.
type Intake interface {
	RequestReminder(ctx context.Context, userID int64, rawText, localeHint string) (appreminder.RequestResult, error)
	Reply(ctx context.Context, userID int64, text, localeHint string) (appreminder.ReplyResult, error)
}

// BotAPI is the Bot API surface the gateway uses.
type BotAPI interface {
	Sender
	GetFile(ctx context.Context, fileID string) (File, error)
	DownloadFile(ctx context.Context, file File) ([]byte, error)
}

// UpdateMetrics counts handled updates by kind.
type UpdateMetrics interface {
	RecordUpdate(kind string)
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	RateLimitRPS      float64
	RateLimitBurst    int
	TranscribeTimeout time.Duration
}

// Gateway turns Telegram updates into confirmation protocol calls.
type Gateway struct {
	intake      Intake
	bot         BotAPI
	transcriber domain.Transcriber
	logger      logging.Logger
	metrics     UpdateMetrics
	cfg         GatewayConfig

	dedupMu    sync.Mutex
	dedupCache *lru.Cache[int64, time.Time]
	limiter    *userLimiter
	now        func() time.Time
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

func WithTranscriber(t domain.Transcriber) GatewayOption {
	return func(g *Gateway) { g.transcriber = t }
}

func WithGatewayLogger(logger logging.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logging.OrNop(logger) }
}

func WithUpdateMetrics(metrics UpdateMetrics) GatewayOption {
	return func(g *Gateway) { g.metrics = metrics }
}

func withNow(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway constructs a Telegram gateway.
func NewGateway(cfg GatewayConfig, intake Intake, bot BotAPI, opts ...GatewayOption) (*Gateway, error) {
	if intake == nil {
		return nil, fmt.Errorf("telegram gateway requires the confirmation intake")
	}
	if bot == nil {
		return nil, fmt.Errorf("telegram gateway requires a bot client")
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = time.Minute
	}
	dedupCache, err := lru.New[int64, time.Time](updateDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("telegram update deduper init: %w", err)
	}
	g := &Gateway{
		intake:     intake,
		bot:        bot,
		cfg:        cfg,
		dedupCache: dedupCache,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewComponentLogger("TelegramGateway")
	}
	g.limiter = newUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, g.now)
	return g, nil
}

// HandleUpdate processes one update. Duplicates, updates without a sender and
// rate-limited users are dropped silently. Panics are contained.
func (g *Gateway) HandleUpdate(ctx context.Context, update Update) (err error) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		g.record("ignored")
		return nil
	}
	if g.isDuplicateUpdate(update.UpdateID) {
		g.record("duplicate")
		return nil
	}
	if !g.limiter.allow(msg.From.ID) {
		g.record("rate_limited")
		g.logger.Warn("TelegramGateway: rate limited user %d", msg.From.ID)
		return nil
	}

	ctx = id.WithUserID(ctx, msg.From.ID)
	ctx, logID := id.EnsureLogID(ctx, id.NewLogID)
	logger := logging.WithLogID(g.logger, logID)
	ctx, span := tracer.Start(ctx, "telegram.update")
	defer span.End()
	span.SetAttributes(attribute.Int64("telegram.update_id", update.UpdateID), attribute.Int64("user.id", msg.From.ID))

	if ok := async.Safe(logger, "telegram-update", func() { err = g.route(ctx, logger, msg) }); !ok {
		g.record("panic")
		return fmt.Errorf("telegram: update %d handler panicked", update.UpdateID)
	}
	if err != nil {
		span.RecordError(err)
		logger.Error("TelegramGateway: update %d: %v", update.UpdateID, err)
	}
	return err
}

func (g *Gateway) route(ctx context.Context, logger logging.Logger, msg *Message) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.Voice != nil:
		g.record("voice")
		return g.handleVoice(ctx, logger, msg)
	case strings.HasPrefix(text, "/"):
		command, args := parseCommand(text)
		switch command {
		case "start":
			g.record("start")
			return g.bot.SendMessage(ctx, msg.Chat.ID, appreminder.GreetingMessage(domain.DetectLocale(text, "")))
		case "remind":
			g.record("remind")
			return g.remind(ctx, msg.Chat.ID, msg.From.ID, args)
		default:
			g.record("unknown_command")
			return nil
		}
	case text != "":
		g.record("reply")
		return g.reply(ctx, msg.Chat.ID, msg.From.ID, text)
	default:
		g.record("ignored")
		return nil
	}
}

func (g *Gateway) remind(ctx context.Context, chatID, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return g.bot.SendMessage(ctx, chatID, appreminder.EmptyRemindMessage(domain.LocaleEnglish))
	}
	result, err := g.intake.RequestReminder(ctx, userID, text, localeHint(text))
	if err != nil {
		return fmt.Errorf("request reminder: %w", err)
	}
	if result.Superseded {
		return nil
	}
	return g.bot.SendMessage(ctx, chatID, result.Summary)
}

func (g *Gateway) reply(ctx context.Context, chatID, userID int64, text string) error {
	result, err := g.intake.Reply(ctx, userID, text, localeHint(text))
	if err != nil && result.Message == "" {
		return fmt.Errorf("reply: %w", err)
	}
	if result.Message != "" {
		if sendErr := g.bot.SendMessage(ctx, chatID, result.Message); sendErr != nil {
			return sendErr
		}
	}
	return err
}

func (g *Gateway) handleVoice(ctx context.Context, logger logging.Logger, msg *Message) error {
	locale := domain.LocaleEnglish
	if g.transcriber == nil {
		return g.bot.SendMessage(ctx, msg.Chat.ID, appreminder.VoiceFailedMessage(locale))
	}

	transcript, err := g.transcribe(ctx, msg.Voice)
	if err != nil {
		logger.Warn("TelegramGateway: voice from user %d: %v", msg.From.ID, err)
		return g.bot.SendMessage(ctx, msg.Chat.ID, appreminder.VoiceFailedMessage(locale))
	}
	locale = domain.DetectLocale(transcript, "")
	if err := g.bot.SendMessage(ctx, msg.Chat.ID, appreminder.TranscriptEcho(transcript, locale)); err != nil {
		return err
	}
	return g.remind(ctx, msg.Chat.ID, msg.From.ID, transcript)
}

func (g *Gateway) transcribe(ctx context.Context, voice *Voice) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.TranscribeTimeout)
	defer cancel()

	if voice.FileSize > maxDownloadBytes {
		return "", ErrFileTooLarge
	}
	file, err := g.bot.GetFile(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	audio, err := g.bot.DownloadFile(ctx, file)
	if err != nil {
		return "", err
	}
	name := path.Base(file.FilePath)
	if name == "." || name == "/" || name == "" {
		name = "voice.ogg"
	}
	transcript, err := g.transcriber.Transcribe(ctx, name, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return transcript, nil
}

func (g *Gateway) isDuplicateUpdate(updateID int64) bool {
	if updateID == 0 {
		return false
	}
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()

	now := g.now()
	if ts, ok := g.dedupCache.Get(updateID); ok {
		if now.Sub(ts) <= updateDedupTTL {
			return true
		}
		g.dedupCache.Remove(updateID)
	}
	g.dedupCache.Add(updateID, now)
	return false
}

func (g *Gateway) record(kind string) {
	if g.metrics != nil {
		g.metrics.RecordUpdate(kind)
	}
}

// parseCommand splits "/remind@marco_bot drink water" into ("remind", "drink water").
func parseCommand(text string) (string, string) {
	text = strings.TrimPrefix(text, "/")
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func localeHint(text string) string {
	if domain.ContainsArabic(text) {
		return string(domain.LocaleArabic)
	}
	return ""
}
