package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors config.yaml. Pointer fields distinguish "unset" from zero values.
type FileConfig struct {
	Runtime *struct {
		LLMProvider        *string `yaml:"llm_provider"`
		LLMModel           *string `yaml:"llm_model"`
		BaseURL            *string `yaml:"base_url"`
		APIKey             *string `yaml:"api_key"`
		TranscriptionModel *string `yaml:"transcription_model"`
		ExtractTimeout     *string `yaml:"extract_timeout"`
		Timezone           *string `yaml:"timezone"`
	} `yaml:"runtime"`
	Telegram *struct {
		BotToken       *string  `yaml:"bot_token"`
		APIBaseURL     *string  `yaml:"api_base_url"`
		Mode           *string  `yaml:"mode"`
		WebhookSecret  *string  `yaml:"webhook_secret"`
		PollTimeout    *string  `yaml:"poll_timeout"`
		RateLimitRPS   *float64 `yaml:"rate_limit_rps"`
		RateLimitBurst *int     `yaml:"rate_limit_burst"`
	} `yaml:"telegram"`
	Scheduler *struct {
		Interval            *string `yaml:"interval"`
		NotifyTimeout       *string `yaml:"notify_timeout"`
		MaxNotifyAttempts   *int    `yaml:"max_notify_attempts"`
		DispatchConcurrency *int    `yaml:"dispatch_concurrency"`
	} `yaml:"scheduler"`
	Confirmation *struct {
		PendingTTL           *string `yaml:"pending_ttl"`
		RepromptUnrecognized *bool   `yaml:"reprompt_unrecognized"`
		PendingBackend       *string `yaml:"pending_backend"`
		RedisAddr            *string `yaml:"redis_addr"`
		RedisPassword        *string `yaml:"redis_password"`
		RedisDB              *int    `yaml:"redis_db"`
	} `yaml:"confirmation"`
	Storage *struct {
		Driver *string `yaml:"driver"`
		Path   *string `yaml:"path"`
		DSN    *string `yaml:"dsn"`
	} `yaml:"storage"`
	Server *struct {
		Port           *int     `yaml:"port"`
		Debug          *bool    `yaml:"debug"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Observability *struct {
		MetricsEnabled  *bool   `yaml:"metrics_enabled"`
		TracingEndpoint *string `yaml:"tracing_endpoint"`
		ServiceName     *string `yaml:"service_name"`
	} `yaml:"observability"`
}

// LoadFileConfig reads and parses the YAML config file. A missing or empty file
// yields an empty FileConfig.
func LoadFileConfig(opts ...Option) (FileConfig, string, error) {
	options := newLoadOptions(opts)
	return loadFileConfig(options)
}

func loadFileConfig(options loadOptions) (FileConfig, string, error) {
	configPath := strings.TrimSpace(options.configPath)
	if configPath == "" {
		configPath, _ = ResolveConfigPath(options.envLookup, options.homeDir)
	}
	if configPath == "" {
		return FileConfig{}, "", nil
	}

	data, err := options.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileConfig{}, configPath, nil
		}
		return FileConfig{}, configPath, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return FileConfig{}, configPath, nil
	}

	// ${VAR} references are interpolated before parsing so secrets can stay in the environment.
	expanded := os.Expand(string(data), func(key string) string {
		value, _ := options.envLookup(key)
		return value
	})

	var parsed FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &parsed); err != nil {
		return FileConfig{}, configPath, fmt.Errorf("parse config file: %w", err)
	}
	return parsed, configPath, nil
}

func applyFile(cfg *Config, meta *Metadata, options loadOptions) error {
	file, path, err := loadFileConfig(options)
	meta.path = path
	if err != nil {
		return err
	}

	set := fileSetter{meta: meta}
	if rt := file.Runtime; rt != nil {
		set.str("llm_provider", &cfg.Runtime.LLMProvider, rt.LLMProvider)
		set.str("llm_model", &cfg.Runtime.LLMModel, rt.LLMModel)
		set.str("base_url", &cfg.Runtime.BaseURL, rt.BaseURL)
		set.str("api_key", &cfg.Runtime.APIKey, rt.APIKey)
		set.str("transcription_model", &cfg.Runtime.TranscriptionModel, rt.TranscriptionModel)
		set.duration("extract_timeout", &cfg.Runtime.ExtractTimeout, rt.ExtractTimeout)
		set.str("timezone", &cfg.Runtime.Timezone, rt.Timezone)
	}
	if tg := file.Telegram; tg != nil {
		set.str("telegram_bot_token", &cfg.Telegram.BotToken, tg.BotToken)
		set.str("telegram_api_base_url", &cfg.Telegram.APIBaseURL, tg.APIBaseURL)
		set.str("telegram_mode", &cfg.Telegram.Mode, tg.Mode)
		set.str("telegram_webhook_secret", &cfg.Telegram.WebhookSecret, tg.WebhookSecret)
		set.duration("telegram_poll_timeout", &cfg.Telegram.PollTimeout, tg.PollTimeout)
		if tg.RateLimitRPS != nil {
			cfg.Telegram.RateLimitRPS = *tg.RateLimitRPS
			meta.sources["telegram_rate_limit_rps"] = SourceFile
		}
		set.int("telegram_rate_limit_burst", &cfg.Telegram.RateLimitBurst, tg.RateLimitBurst)
	}
	if sc := file.Scheduler; sc != nil {
		set.duration("scheduler_interval", &cfg.Scheduler.Interval, sc.Interval)
		set.duration("notify_timeout", &cfg.Scheduler.NotifyTimeout, sc.NotifyTimeout)
		set.int("max_notify_attempts", &cfg.Scheduler.MaxNotifyAttempts, sc.MaxNotifyAttempts)
		set.int("dispatch_concurrency", &cfg.Scheduler.DispatchConcurrency, sc.DispatchConcurrency)
	}
	if cf := file.Confirmation; cf != nil {
		set.duration("pending_ttl", &cfg.Confirmation.PendingTTL, cf.PendingTTL)
		set.bool("reprompt_unrecognized", &cfg.Confirmation.RepromptUnrecognized, cf.RepromptUnrecognized)
		set.str("pending_backend", &cfg.Confirmation.PendingBackend, cf.PendingBackend)
		set.str("redis_addr", &cfg.Confirmation.RedisAddr, cf.RedisAddr)
		set.str("redis_password", &cfg.Confirmation.RedisPassword, cf.RedisPassword)
		set.int("redis_db", &cfg.Confirmation.RedisDB, cf.RedisDB)
	}
	if st := file.Storage; st != nil {
		set.str("storage_driver", &cfg.Storage.Driver, st.Driver)
		set.str("storage_path", &cfg.Storage.Path, st.Path)
		set.str("storage_dsn", &cfg.Storage.DSN, st.DSN)
	}
	if sv := file.Server; sv != nil {
		set.int("server_port", &cfg.Server.Port, sv.Port)
		set.bool("server_debug", &cfg.Server.Debug, sv.Debug)
		if sv.AllowedOrigins != nil {
			cfg.Server.AllowedOrigins = sv.AllowedOrigins
			meta.sources["allowed_origins"] = SourceFile
		}
	}
	if ob := file.Observability; ob != nil {
		set.bool("metrics_enabled", &cfg.Observability.MetricsEnabled, ob.MetricsEnabled)
		set.str("tracing_endpoint", &cfg.Observability.TracingEndpoint, ob.TracingEndpoint)
		set.str("service_name", &cfg.Observability.ServiceName, ob.ServiceName)
	}
	return set.err
}

type fileSetter struct {
	meta *Metadata
	err  error
}

func (s *fileSetter) str(field string, dst *string, value *string) {
	if value == nil {
		return
	}
	*dst = strings.TrimSpace(*value)
	s.meta.sources[field] = SourceFile
}

func (s *fileSetter) int(field string, dst *int, value *int) {
	if value == nil {
		return
	}
	*dst = *value
	s.meta.sources[field] = SourceFile
}

func (s *fileSetter) bool(field string, dst *bool, value *bool) {
	if value == nil {
		return
	}
	*dst = *value
	s.meta.sources[field] = SourceFile
}

func (s *fileSetter) duration(field string, dst *time.Duration, value *string) {
	if value == nil || s.err != nil {
		return
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(*value))
	if err != nil {
		s.err = fmt.Errorf("parse %s: %w", field, err)
		return
	}
	*dst = parsed
	s.meta.sources[field] = SourceFile
}
