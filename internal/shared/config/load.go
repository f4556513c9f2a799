package config

import (
	"os"
	"strings"
	"time"
)

func newLoadOptions(opts []Option) loadOptions {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.envLookup == nil {
		options.envLookup = DefaultEnvLookup
	}
	if options.readFile == nil {
		options.readFile = os.ReadFile
	}
	return options
}

// Load resolves the configuration from defaults, the YAML file, the environment
// and caller overrides, in that order of increasing precedence.
func Load(opts ...Option) (Config, Metadata, error) {
	options := newLoadOptions(opts)
	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Default()

	if err := applyFile(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)
	normalize(&cfg)

	// Without credentials the extractor falls back to the offline mock.
	if cfg.Runtime.APIKey == "" && cfg.Runtime.LLMProvider != "mock" {
		cfg.Runtime.LLMProvider = "mock"
		meta.sources["llm_provider"] = SourceDefault
	}

	if err := Validate(cfg); err != nil {
		return Config{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func applyOverrides(cfg *Config, meta *Metadata, overrides Overrides) {
	setString := func(field string, dst *string, value *string) {
		if value == nil {
			return
		}
		*dst = *value
		meta.sources[field] = SourceOverride
	}
	setString("llm_provider", &cfg.Runtime.LLMProvider, overrides.LLMProvider)
	setString("llm_model", &cfg.Runtime.LLMModel, overrides.LLMModel)
	setString("api_key", &cfg.Runtime.APIKey, overrides.APIKey)
	setString("telegram_bot_token", &cfg.Telegram.BotToken, overrides.BotToken)
	setString("telegram_mode", &cfg.Telegram.Mode, overrides.TelegramMode)
	setString("storage_driver", &cfg.Storage.Driver, overrides.StorageDriver)
	setString("storage_path", &cfg.Storage.Path, overrides.StoragePath)
	setString("storage_dsn", &cfg.Storage.DSN, overrides.StorageDSN)

	if overrides.SchedulerInterval != nil {
		cfg.Scheduler.Interval = *overrides.SchedulerInterval
		meta.sources["scheduler_interval"] = SourceOverride
	}
	if overrides.Port != nil {
		cfg.Server.Port = *overrides.Port
		meta.sources["server_port"] = SourceOverride
	}
	if overrides.Debug != nil {
		cfg.Server.Debug = *overrides.Debug
		meta.sources["server_debug"] = SourceOverride
	}
}

func normalize(cfg *Config) {
	cfg.Runtime.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.Runtime.LLMProvider))
	cfg.Runtime.LLMModel = strings.TrimSpace(cfg.Runtime.LLMModel)
	cfg.Runtime.APIKey = strings.TrimSpace(cfg.Runtime.APIKey)
	cfg.Runtime.Timezone = strings.TrimSpace(cfg.Runtime.Timezone)
	cfg.Runtime.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Runtime.BaseURL), "/")
	cfg.Telegram.BotToken = strings.TrimSpace(cfg.Telegram.BotToken)
	cfg.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Telegram.APIBaseURL), "/")
	cfg.Telegram.Mode = strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode))
	cfg.Confirmation.PendingBackend = strings.ToLower(strings.TrimSpace(cfg.Confirmation.PendingBackend))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Server.AllowedOrigins = splitList(strings.Join(cfg.Server.AllowedOrigins, ","))
	if cfg.Scheduler.DispatchConcurrency == 0 {
		cfg.Scheduler.DispatchConcurrency = DefaultDispatchConcurrency
	}
}
