package config

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			LLMProvider:        DefaultLLMProvider,
			LLMModel:           DefaultLLMModel,
			BaseURL:            DefaultLLMBaseURL,
			TranscriptionModel: DefaultTranscriptionModel,
			ExtractTimeout:     DefaultExtractTimeout,
		},
		Telegram: TelegramConfig{
			APIBaseURL:     DefaultTelegramAPIBaseURL,
			Mode:           TelegramModeWebhook,
			PollTimeout:    DefaultPollTimeout,
			RateLimitRPS:   1.0,
			RateLimitBurst: 5,
		},
		Scheduler: SchedulerConfig{
			Interval:            DefaultSchedulerInterval,
			NotifyTimeout:       DefaultNotifyTimeout,
			MaxNotifyAttempts:   DefaultMaxNotifyAttempts,
			DispatchConcurrency: DefaultDispatchConcurrency,
		},
		Confirmation: ConfirmationConfig{
			PendingTTL:           DefaultPendingTTL,
			RepromptUnrecognized: true,
			PendingBackend:       PendingBackendMemory,
		},
		Storage: StorageConfig{
			Driver: StorageDriverFile,
			Path:   DefaultStoragePath,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			ServiceName:    "marco",
		},
	}
}
