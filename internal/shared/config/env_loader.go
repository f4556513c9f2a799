package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type envBinding struct {
	key   string
	field string
	apply func(cfg *Config, value string) error
}

func stringEnv(get func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*get(cfg) = value
		return nil
	}
}

func intEnv(get func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*get(cfg) = parsed
		return nil
	}
}

func boolEnv(get func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := parseBoolEnv(value)
		if err != nil {
			return err
		}
		*get(cfg) = parsed
		return nil
	}
}

func listEnv(get func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*get(cfg) = splitList(value)
		return nil
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(get func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*get(cfg) = parsed
		return nil
	}
}

// envBindings lists every recognised variable. Later entries win when two keys
// target the same field (MARCO_* beats the bare provider names).
var envBindings = []envBinding{
	{"OPENAI_API_KEY", "api_key", stringEnv(func(c *Config) *string { return &c.Runtime.APIKey })},
	{"MARCO_LLM_API_KEY", "api_key", stringEnv(func(c *Config) *string { return &c.Runtime.APIKey })},
	{"MARCO_LLM_PROVIDER", "llm_provider", stringEnv(func(c *Config) *string { return &c.Runtime.LLMProvider })},
	{"MARCO_LLM_MODEL", "llm_model", stringEnv(func(c *Config) *string { return &c.Runtime.LLMModel })},
	{"MARCO_LLM_BASE_URL", "base_url", stringEnv(func(c *Config) *string { return &c.Runtime.BaseURL })},
	{"MARCO_TRANSCRIPTION_MODEL", "transcription_model", stringEnv(func(c *Config) *string { return &c.Runtime.TranscriptionModel })},
	{"MARCO_EXTRACT_TIMEOUT", "extract_timeout", durationEnv(func(c *Config) *time.Duration { return &c.Runtime.ExtractTimeout })},
	{"MARCO_TIMEZONE", "timezone", stringEnv(func(c *Config) *string { return &c.Runtime.Timezone })},

	{"TELEGRAM_BOT_TOKEN", "telegram_bot_token", stringEnv(func(c *Config) *string { return &c.Telegram.BotToken })},
	{"MARCO_TELEGRAM_API_BASE_URL", "telegram_api_base_url", stringEnv(func(c *Config) *string { return &c.Telegram.APIBaseURL })},
	{"MARCO_TELEGRAM_MODE", "telegram_mode", stringEnv(func(c *Config) *string { return &c.Telegram.Mode })},
	{"MARCO_TELEGRAM_WEBHOOK_SECRET", "telegram_webhook_secret", stringEnv(func(c *Config) *string { return &c.Telegram.WebhookSecret })},
	{"MARCO_TELEGRAM_POLL_TIMEOUT", "telegram_poll_timeout", durationEnv(func(c *Config) *time.Duration { return &c.Telegram.PollTimeout })},

	{"MARCO_SCHEDULER_INTERVAL", "scheduler_interval", durationEnv(func(c *Config) *time.Duration { return &c.Scheduler.Interval })},
	{"MARCO_NOTIFY_TIMEOUT", "notify_timeout", durationEnv(func(c *Config) *time.Duration { return &c.Scheduler.NotifyTimeout })},
	{"MARCO_MAX_NOTIFY_ATTEMPTS", "max_notify_attempts", intEnv(func(c *Config) *int { return &c.Scheduler.MaxNotifyAttempts })},
	{"MARCO_DISPATCH_CONCURRENCY", "dispatch_concurrency", intEnv(func(c *Config) *int { return &c.Scheduler.DispatchConcurrency })},

	{"MARCO_PENDING_TTL", "pending_ttl", durationEnv(func(c *Config) *time.Duration { return &c.Confirmation.PendingTTL })},
	{"MARCO_REPROMPT_UNRECOGNIZED", "reprompt_unrecognized", boolEnv(func(c *Config) *bool { return &c.Confirmation.RepromptUnrecognized })},
	{"MARCO_PENDING_BACKEND", "pending_backend", stringEnv(func(c *Config) *string { return &c.Confirmation.PendingBackend })},
	{"MARCO_REDIS_ADDR", "redis_addr", stringEnv(func(c *Config) *string { return &c.Confirmation.RedisAddr })},
	{"MARCO_REDIS_PASSWORD", "redis_password", stringEnv(func(c *Config) *string { return &c.Confirmation.RedisPassword })},

	{"MARCO_STORAGE_DRIVER", "storage_driver", stringEnv(func(c *Config) *string { return &c.Storage.Driver })},
	{"MARCO_STORAGE_PATH", "storage_path", stringEnv(func(c *Config) *string { return &c.Storage.Path })},
	{"MARCO_STORAGE_DSN", "storage_dsn", stringEnv(func(c *Config) *string { return &c.Storage.DSN })},

	{"PORT", "server_port", intEnv(func(c *Config) *int { return &c.Server.Port })},
	{"MARCO_DEBUG", "server_debug", boolEnv(func(c *Config) *bool { return &c.Server.Debug })},
	{"MARCO_ALLOWED_ORIGINS", "allowed_origins", listEnv(func(c *Config) *[]string { return &c.Server.AllowedOrigins })},

	{"MARCO_METRICS_ENABLED", "metrics_enabled", boolEnv(func(c *Config) *bool { return &c.Observability.MetricsEnabled })},
	{"MARCO_TRACING_ENDPOINT", "tracing_endpoint", stringEnv(func(c *Config) *string { return &c.Observability.TracingEndpoint })},
}

func applyEnv(cfg *Config, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	for _, binding := range envBindings {
		value, ok := lookup(binding.key)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		if err := binding.apply(cfg, value); err != nil {
			return fmt.Errorf("parse %s: %w", binding.key, err)
		}
		meta.sources[binding.field] = SourceEnv
	}
	return nil
}

func parseBoolEnv(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}
