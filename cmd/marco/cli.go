package main

import (
	"context"
	"fmt"
	"time"

	"marco/internal/di"
	"marco/internal/shared/config"
	"marco/internal/shared/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagConfig            = "config"
	flagLLMProvider       = "llm-provider"
	flagLLMModel          = "llm-model"
	flagTelegramMode      = "telegram-mode"
	flagSchedulerInterval = "scheduler-interval"
	flagStorageDriver     = "storage-driver"
	flagStoragePath       = "storage-path"
	flagStorageDSN        = "storage-dsn"
	flagPort              = "port"
	flagDebug             = "debug"
	flagLogLevel          = "log-level"
)

// cli carries the flag state shared by every subcommand.
type cli struct {
	v *viper.Viper
}

func newRootCommand() *cobra.Command {
	return (&cli{v: viper.New()}).rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "marco",
		Short: "Conversational reminder assistant",
		Long: fmt.Sprintf(`%s

Marco turns free-text requests such as "call mom tomorrow at 6pm" into
confirmed reminders and delivers them on time over Telegram.

%s
  marco serve                          # run the bot, scheduler and HTTP server
  marco reminders list --user 42       # show one user's reminders
  marco reminders dispatch             # deliver everything due now, once
  marco config show                    # print the effective configuration`,
			bold("marco "+Version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String(flagConfig, "", "config file (default ~/.marco/config.yaml)")
	flags.String(flagLLMProvider, "", "intent extraction provider (openai, mock)")
	flags.String(flagLLMModel, "", "chat model used for extraction")
	flags.String(flagTelegramMode, "", "telegram update mode (webhook, polling)")
	flags.Duration(flagSchedulerInterval, 0, "dispatch tick interval")
	flags.String(flagStorageDriver, "", "reminder storage driver (file, sqlite, postgres)")
	flags.String(flagStoragePath, "", "reminder file or sqlite database path")
	flags.String(flagStorageDSN, "", "postgres connection string")
	flags.Int(flagPort, 0, "HTTP listen port")
	flags.Bool(flagDebug, false, "debug logging and gin debug mode")
	flags.String(flagLogLevel, "", "minimum log level (debug, info, warn, error)")
	_ = c.v.BindPFlags(flags)

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newRemindersCommand(c))
	root.AddCommand(newConfigCommand(c))
	root.AddCommand(newVersionCommand())
	return root
}

func stringOverride(v *viper.Viper, key string) *string {
	if !v.IsSet(key) {
		return nil
	}
	value := v.GetString(key)
	return &value
}

// overrides converts the flags the user actually passed into config overrides.
func (c *cli) overrides() config.Overrides {
	o := config.Overrides{
		LLMProvider:   stringOverride(c.v, flagLLMProvider),
		LLMModel:      stringOverride(c.v, flagLLMModel),
		TelegramMode:  stringOverride(c.v, flagTelegramMode),
		StorageDriver: stringOverride(c.v, flagStorageDriver),
		StoragePath:   stringOverride(c.v, flagStoragePath),
		StorageDSN:    stringOverride(c.v, flagStorageDSN),
	}
	if c.v.IsSet(flagSchedulerInterval) {
		interval := c.v.GetDuration(flagSchedulerInterval)
		o.SchedulerInterval = &interval
	}
	if c.v.IsSet(flagPort) {
		port := c.v.GetInt(flagPort)
		o.Port = &port
	}
	if c.v.IsSet(flagDebug) {
		debug := c.v.GetBool(flagDebug)
		o.Debug = &debug
	}
	return o
}

func (c *cli) loadConfig() (config.Config, config.Metadata, error) {
	opts := []config.Option{config.WithOverrides(c.overrides())}
	if path := c.v.GetString(flagConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return config.Config{}, config.Metadata{}, fmt.Errorf("load config: %w", err)
	}
	level := logging.LevelInfo
	if cfg.Server.Debug {
		level = logging.LevelDebug
	}
	if raw := c.v.GetString(flagLogLevel); raw != "" {
		level = logging.ParseLevel(raw)
	}
	logging.SetDefaultLevel(level)
	return cfg, meta, nil
}

// withContainer builds the container, runs fn and shuts the container down.
func (c *cli) withContainer(ctx context.Context, fn func(*di.Container) error) error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}
	container, err := di.BuildContainer(ctx, cfg, di.WithServiceVersion(Version))
	if err != nil {
		return err
	}
	runErr := fn(container)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := container.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
