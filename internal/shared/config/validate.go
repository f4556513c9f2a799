package config

import (
	"errors"
	"fmt"
)

// Validate rejects configurations the process cannot run with.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive, got %s", cfg.Scheduler.Interval))
	}
	if cfg.Scheduler.NotifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.notify_timeout must be positive, got %s", cfg.Scheduler.NotifyTimeout))
	}
	if cfg.Scheduler.MaxNotifyAttempts < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_notify_attempts must be >= 0, got %d", cfg.Scheduler.MaxNotifyAttempts))
	}
	if cfg.Scheduler.DispatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("scheduler.dispatch_concurrency must be >= 1, got %d", cfg.Scheduler.DispatchConcurrency))
	}
	if cfg.Runtime.ExtractTimeout <= 0 {
		errs = append(errs, fmt.Errorf("runtime.extract_timeout must be positive, got %s", cfg.Runtime.ExtractTimeout))
	}
	if _, err := cfg.Runtime.Location(); err != nil {
		errs = append(errs, fmt.Errorf("runtime.timezone: %w", err))
	}
	if cfg.Confirmation.PendingTTL < 0 {
		errs = append(errs, fmt.Errorf("confirmation.pending_ttl must be >= 0, got %s", cfg.Confirmation.PendingTTL))
	}
	switch cfg.Confirmation.PendingBackend {
	case PendingBackendMemory:
	case PendingBackendRedis:
		if cfg.Confirmation.RedisAddr == "" {
			errs = append(errs, errors.New("confirmation.redis_addr is required for the redis pending backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown confirmation.pending_backend %q", cfg.Confirmation.PendingBackend))
	}
	switch cfg.Storage.Driver {
	case StorageDriverFile, StorageDriverSQLite:
		if cfg.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s driver", cfg.Storage.Driver))
		}
	case StorageDriverPostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver))
	}
	switch cfg.Telegram.Mode {
	case TelegramModeWebhook, TelegramModePolling:
	default:
		errs = append(errs, fmt.Errorf("unknown telegram.mode %q", cfg.Telegram.Mode))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Telegram.RateLimitRPS < 0 || cfg.Telegram.RateLimitBurst < 0 {
		errs = append(errs, errors.New("telegram rate limits must be >= 0"))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked for display.
func (c Config) Redacted() Config {
	out := c
	out.Runtime.APIKey = mask(out.Runtime.APIKey)
	out.Telegram.BotToken = mask(out.Telegram.BotToken)
	out.Telegram.WebhookSecret = mask(out.Telegram.WebhookSecret)
	out.Confirmation.RedisPassword = mask(out.Confirmation.RedisPassword)
	out.Storage.DSN = mask(out.Storage.DSN)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
