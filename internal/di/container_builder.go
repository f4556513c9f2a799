package di

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	appreminder "marco/internal/app/reminder"
	"marco/internal/app/scheduler"
	"marco/internal/delivery/channels/telegram"
	serverHTTP "marco/internal/delivery/server/http"
	domain "marco/internal/domain/reminder"
	"marco/internal/infra/filestore"
	"marco/internal/infra/llm"
	"marco/internal/infra/observability"
	"marco/internal/infra/storage"
	"marco/internal/shared/config"
	"marco/internal/shared/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// MockLLMProvider selects the offline rule-based extractor.
	MockLLMProvider = "mock"

	transcribeTimeout = time.Minute
)

// Option customizes BuildContainer.
type Option func(*containerBuilder)

// WithLogger replaces the component loggers of every wired part.
func WithLogger(logger logging.Logger) Option {
	return func(b *containerBuilder) { b.logger = logging.OrNop(logger) }
}

func WithClock(clock domain.Clock) Option {
	return func(b *containerBuilder) { b.clock = domain.ClockOrSystem(clock) }
}

// WithNotifier overrides the notifier derived from the Telegram settings.
func WithNotifier(notifier domain.Notifier) Option {
	return func(b *containerBuilder) { b.notifier = notifier }
}

// WithServiceVersion tags exported spans.
func WithServiceVersion(version string) Option {
	return func(b *containerBuilder) { b.version = version }
}

type containerBuilder struct {
	config   config.Config
	logger   logging.Logger
	clock    domain.Clock
	notifier domain.Notifier
	version  string
	location *time.Location
	closers  []closer
}

// BuildContainer validates cfg and wires every component. On error, the
// resources acquired so far are released.
func BuildContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	b := &containerBuilder{config: cfg, clock: domain.SystemClock{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NewComponentLogger("DI")
	}

	container, err := b.build(ctx)
	if err != nil {
		b.release()
		return nil, err
	}
	return container, nil
}

func (b *containerBuilder) build(ctx context.Context) (*Container, error) {
	loc, err := b.config.Runtime.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	b.location = loc

	if err := b.buildTracing(ctx); err != nil {
		return nil, err
	}
	metrics, promRegistry := b.buildMetrics()

	store, err := b.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := b.buildPendingStore(ctx)
	if err != nil {
		return nil, err
	}

	registry := appreminder.NewRegistry(store,
		appreminder.WithRegistryClock(b.clock),
		appreminder.WithRegistryLogger(b.logger),
	)
	if err := registry.Load(ctx); err != nil {
		return nil, err
	}

	machineOpts := []appreminder.MachineOption{
		appreminder.WithMachineClock(b.clock),
		appreminder.WithMachineLogger(b.logger),
	}
	if metrics != nil {
		machineOpts = append(machineOpts, appreminder.WithIntakeMetrics(metrics))
	}
	machine := appreminder.NewConfirmationStateMachine(
		b.buildExtractor(),
		pending,
		registry,
		appreminder.MachineConfig{
			ExtractTimeout:       b.config.Runtime.ExtractTimeout,
			RepromptUnrecognized: b.config.Confirmation.RepromptUnrecognized,
		},
		machineOpts...,
	)

	bot, err := b.buildBot()
	if err != nil {
		return nil, err
	}
	notifier := b.notifier
	if notifier == nil {
		if bot != nil {
			notifier = telegram.NewNotifier(bot)
		} else {
			b.logger.Warn("DI: no Telegram bot token, reminders will only be logged")
			notifier = scheduler.NewLogNotifier(b.logger)
		}
	}

	dispatcherOpts := []scheduler.Option{
		scheduler.WithClock(b.clock),
		scheduler.WithLogger(b.logger),
	}
	if metrics != nil {
		dispatcherOpts = append(dispatcherOpts, scheduler.WithMetrics(metrics))
	}
	dispatcher := scheduler.New(scheduler.Config{
		Interval:          b.config.Scheduler.Interval,
		NotifyTimeout:     b.config.Scheduler.NotifyTimeout,
		MaxNotifyAttempts: b.config.Scheduler.MaxNotifyAttempts,
		Concurrency:       b.config.Scheduler.DispatchConcurrency,
	}, registry, notifier, dispatcherOpts...)

	container := &Container{
		Config:     b.config,
		Store:      store,
		Registry:   registry,
		Pending:    pending,
		Machine:    machine,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Bot:        bot,
		Metrics:    metrics,
		Prometheus: promRegistry,
		logger:     b.logger,
	}

	if bot != nil {
		if err := b.buildGateway(container); err != nil {
			return nil, err
		}
	}
	container.Router = b.buildRouter(container)
	container.closers = b.closers

	b.logger.Info("DI: container built (storage=%s, pending=%s, llm=%s, telegram=%s, reminders=%d)",
		b.config.Storage.Driver, b.config.Confirmation.PendingBackend, b.config.Runtime.LLMProvider,
		telegramMode(container), registry.Len())
	return container, nil
}

func (b *containerBuilder) addCloser(name string, fn func(context.Context) error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

func (b *containerBuilder) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].fn(ctx); err != nil {
			b.logger.Warn("DI: release %s: %v", b.closers[i].name, err)
		}
	}
	b.closers = nil
}

func (b *containerBuilder) buildTracing(ctx context.Context) error {
	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:       b.config.Observability.TracingEndpoint,
		ServiceName:    b.config.Observability.ServiceName,
		ServiceVersion: b.version,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	b.addCloser("tracing", func(ctx context.Context) error { return shutdown(ctx) })
	return nil
}

func (b *containerBuilder) buildMetrics() (*observability.Metrics, *prometheus.Registry) {
	if !b.config.Observability.MetricsEnabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return observability.MustNewMetrics(reg), reg
}

func (b *containerBuilder) buildStore(ctx context.Context) (domain.SnapshotStore, error) {
	switch b.config.Storage.Driver {
	case config.StorageDriverSQLite:
		path := filestore.ResolvePath(b.config.Storage.Path, config.DefaultStoragePath)
		if err := filestore.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("prepare sqlite dir: %w", err)
		}
		db, err := storage.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		b.addCloser("sqlite", func(context.Context) error { return store.Close() })
		return store, nil
	case config.StorageDriverPostgres:
		store, err := storage.OpenPostgres(ctx, b.config.Storage.DSN, b.logger)
		if err != nil {
			return nil, err
		}
		b.addCloser("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	default:
		path := filestore.ResolvePath(b.config.Storage.Path, config.DefaultStoragePath)
		return storage.NewFileStore(path,
			storage.WithLocation(b.location),
			storage.WithFileLogger(b.logger),
		), nil
	}
}

func (b *containerBuilder) buildPendingStore(ctx context.Context) (domain.PendingStore, error) {
	cfg := b.config.Confirmation
	if cfg.PendingBackend != config.PendingBackendRedis {
		return appreminder.NewMemoryPendingStore(cfg.PendingTTL, b.clock), nil
	}
	store := storage.NewRedisPendingStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PendingTTL)
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	b.addCloser("redis", func(context.Context) error { return store.Close() })
	return store, nil
}

func (b *containerBuilder) llmConfig() llm.Config {
	rt := b.config.Runtime
	return llm.Config{
		BaseURL:            rt.BaseURL,
		APIKey:             rt.APIKey,
		Model:              rt.LLMModel,
		TranscriptionModel: rt.TranscriptionModel,
		Timeout:            rt.ExtractTimeout,
	}
}

func (b *containerBuilder) usesRemoteLLM() bool {
	provider := strings.ToLower(b.config.Runtime.LLMProvider)
	return provider != MockLLMProvider && b.config.Runtime.APIKey != ""
}

func (b *containerBuilder) buildExtractor() domain.IntentExtractor {
	if !b.usesRemoteLLM() {
		if !strings.EqualFold(b.config.Runtime.LLMProvider, MockLLMProvider) {
			b.logger.Warn("DI: no API key for %s, falling back to the rule-based extractor", b.config.Runtime.LLMProvider)
		}
		return llm.NewRuleExtractor(b.clock)
	}
	return llm.NewOpenAIExtractor(b.llmConfig(),
		llm.WithExtractorClock(b.clock),
		llm.WithExtractorLocation(b.location),
		llm.WithExtractorLogger(b.logger),
	)
}

func (b *containerBuilder) buildBot() (*telegram.Client, error) {
	tg := b.config.Telegram
	if tg.BotToken == "" {
		return nil, nil
	}
	bot, err := telegram.NewClient(telegram.ClientConfig{
		Token:      tg.BotToken,
		APIBaseURL: tg.APIBaseURL,
		Timeout:    tg.PollTimeout + 15*time.Second,
	}, nil, b.logger)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	return bot, nil
}

func (b *containerBuilder) buildGateway(c *Container) error {
	opts := []telegram.GatewayOption{telegram.WithGatewayLogger(b.logger)}
	if b.usesRemoteLLM() {
		opts = append(opts, telegram.WithTranscriber(llm.NewWhisperTranscriber(b.llmConfig(), nil, b.logger)))
	}
	if c.Metrics != nil {
		opts = append(opts, telegram.WithUpdateMetrics(c.Metrics))
	}
	gateway, err := telegram.NewGateway(telegram.GatewayConfig{
		RateLimitRPS:      b.config.Telegram.RateLimitRPS,
		RateLimitBurst:    b.config.Telegram.RateLimitBurst,
		TranscribeTimeout: transcribeTimeout,
	}, c.Machine, c.Bot, opts...)
	if err != nil {
		return err
	}
	c.Gateway = gateway
	if b.config.Telegram.Mode == config.TelegramModePolling {
		c.Poller = telegram.NewPoller(c.Bot, gateway, b.config.Telegram.PollTimeout, b.logger)
	}
	return nil
}

func (b *containerBuilder) buildRouter(c *Container) http.Handler {
	deps := serverHTTP.RouterDeps{
		Reminders: c.Registry,
		Clock:     b.clock,
		Logger:    b.logger,
	}
	if c.Gateway != nil && c.Poller == nil {
		deps.Updates = c.Gateway
		deps.WebhookSecret = b.config.Telegram.WebhookSecret
	}
	if c.Prometheus != nil {
		deps.Gatherer = c.Prometheus
		deps.Metrics = c.Metrics
	}
	return serverHTTP.NewRouter(deps, serverHTTP.RouterConfig{
		Debug:          b.config.Server.Debug,
		AllowedOrigins: b.config.Server.AllowedOrigins,
	})
}

func telegramMode(c *Container) string {
	switch {
	case c.Gateway == nil:
		return "disabled"
	case c.Poller != nil:
		return config.TelegramModePolling
	default:
		return config.TelegramModeWebhook
	}
}
