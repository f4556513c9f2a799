package config

import (
	"os"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultLLMProvider        = "openai"
	DefaultLLMModel           = "gpt-4o-mini"
	DefaultLLMBaseURL         = "https://api.openai.com/v1"
	DefaultTranscriptionModel = "whisper-1"
	DefaultTelegramAPIBaseURL = "https://api.telegram.org"

	DefaultExtractTimeout      = 15 * time.Second
	DefaultSchedulerInterval   = 30 * time.Second
	DefaultNotifyTimeout       = 10 * time.Second
	DefaultMaxNotifyAttempts   = 20
	DefaultDispatchConcurrency = 1
	DefaultPendingTTL          = 30 * time.Minute
	DefaultPollTimeout         = 30 * time.Second
	DefaultServerPort          = 10000
	DefaultStoragePath         = "~/.marco/reminders.json"

	TelegramModeWebhook = "webhook"
	TelegramModePolling = "polling"

	PendingBackendMemory = "memory"
	PendingBackendRedis  = "redis"

	StorageDriverFile     = "file"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// Config is the fully resolved process configuration.
type Config struct {
	Runtime       RuntimeConfig       `json:"runtime" yaml:"runtime"`
	Telegram      TelegramConfig      `json:"telegram" yaml:"telegram"`
	Scheduler     SchedulerConfig     `json:"scheduler" yaml:"scheduler"`
	Confirmation  ConfirmationConfig  `json:"confirmation" yaml:"confirmation"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// RuntimeConfig selects the language model backend used for extraction and transcription.
type RuntimeConfig struct {
	LLMProvider        string        `json:"llm_provider" yaml:"llm_provider"`
	LLMModel           string        `json:"llm_model" yaml:"llm_model"`
	BaseURL            string        `json:"base_url" yaml:"base_url"`
	APIKey             string        `json:"api_key" yaml:"api_key"`
	TranscriptionModel string        `json:"transcription_model" yaml:"transcription_model"`
	ExtractTimeout     time.Duration `json:"extract_timeout" yaml:"extract_timeout"`
	Timezone           string        `json:"timezone" yaml:"timezone"`
}

// Location resolves Timezone. Empty means the process local zone.
func (r RuntimeConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

type TelegramConfig struct {
	BotToken       string        `json:"bot_token" yaml:"bot_token"`
	APIBaseURL     string        `json:"api_base_url" yaml:"api_base_url"`
	Mode           string        `json:"mode" yaml:"mode"`
	WebhookSecret  string        `json:"webhook_secret" yaml:"webhook_secret"`
	PollTimeout    time.Duration `json:"poll_timeout" yaml:"poll_timeout"`
	RateLimitRPS   float64       `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

type SchedulerConfig struct {
	Interval            time.Duration `json:"interval" yaml:"interval"`
	NotifyTimeout       time.Duration `json:"notify_timeout" yaml:"notify_timeout"`
	MaxNotifyAttempts   int           `json:"max_notify_attempts" yaml:"max_notify_attempts"`
	DispatchConcurrency int           `json:"dispatch_concurrency" yaml:"dispatch_concurrency"`
}

type ConfirmationConfig struct {
	PendingTTL           time.Duration `json:"pending_ttl" yaml:"pending_ttl"`
	RepromptUnrecognized bool          `json:"reprompt_unrecognized" yaml:"reprompt_unrecognized"`
	PendingBackend       string        `json:"pending_backend" yaml:"pending_backend"`
	RedisAddr            string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword        string        `json:"redis_password" yaml:"redis_password"`
	RedisDB              int           `json:"redis_db" yaml:"redis_db"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path" yaml:"path"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type ServerConfig struct {
	Port  int  `json:"port" yaml:"port"`
	Debug bool `json:"debug" yaml:"debug"`
	// AllowedOrigins enables CORS on /api for these origins; "*" allows any.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type ObservabilityConfig struct {
	MetricsEnabled  bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEndpoint string `json:"tracing_endpoint" yaml:"tracing_endpoint"`
	ServiceName     string `json:"service_name" yaml:"service_name"`
}

// Metadata captures provenance for configuration values.
type Metadata struct {
	sources  map[string]ValueSource
	path     string
	loadedAt time.Time
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		out[key] = value
	}
	return out
}

// Source returns the provenance for a given field. Unknown fields are defaults.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Path returns the config file path that was consulted.
func (m Metadata) Path() string {
	return m.path
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values (CLI flags) that trump every other source.
type Overrides struct {
	LLMProvider       *string
	LLMModel          *string
	APIKey            *string
	BotToken          *string
	TelegramMode      *string
	SchedulerInterval *time.Duration
	StorageDriver     *string
	StoragePath       *string
	StorageDSN        *string
	Port              *int
	Debug             *bool
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	configPath string
	overrides  Overrides
}

// WithEnv replaces the environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader replaces the function used to read the config file.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithHomeDir replaces home directory resolution.
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = fn }
}

// WithConfigPath forces a specific config file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithOverrides applies caller overrides after file and env.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) { o.overrides = overrides }
}
