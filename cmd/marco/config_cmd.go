package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"marco/internal/shared/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and where each value came from",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := c.loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg.Redacted(), meta)
			return nil
		},
	})
	return cmd
}

type configRow struct {
	field string
	value string
}

func configRows(cfg config.Config) []configRow {
	str := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	return []configRow{
		{"llm_provider", cfg.Runtime.LLMProvider},
		{"llm_model", cfg.Runtime.LLMModel},
		{"base_url", cfg.Runtime.BaseURL},
		{"api_key", str(cfg.Runtime.APIKey)},
		{"transcription_model", cfg.Runtime.TranscriptionModel},
		{"extract_timeout", cfg.Runtime.ExtractTimeout.String()},
		{"timezone", str(cfg.Runtime.Timezone)},
		{"telegram_bot_token", str(cfg.Telegram.BotToken)},
		{"telegram_api_base_url", cfg.Telegram.APIBaseURL},
		{"telegram_mode", cfg.Telegram.Mode},
		{"telegram_webhook_secret", str(cfg.Telegram.WebhookSecret)},
		{"telegram_poll_timeout", cfg.Telegram.PollTimeout.String()},
		{"telegram_rate_limit_rps", strconv.FormatFloat(cfg.Telegram.RateLimitRPS, 'g', -1, 64)},
		{"telegram_rate_limit_burst", strconv.Itoa(cfg.Telegram.RateLimitBurst)},
		{"scheduler_interval", cfg.Scheduler.Interval.String()},
		{"notify_timeout", cfg.Scheduler.NotifyTimeout.String()},
		{"max_notify_attempts", strconv.Itoa(cfg.Scheduler.MaxNotifyAttempts)},
		{"dispatch_concurrency", strconv.Itoa(cfg.Scheduler.DispatchConcurrency)},
		{"pending_ttl", cfg.Confirmation.PendingTTL.String()},
		{"reprompt_unrecognized", strconv.FormatBool(cfg.Confirmation.RepromptUnrecognized)},
		{"pending_backend", cfg.Confirmation.PendingBackend},
		{"redis_addr", str(cfg.Confirmation.RedisAddr)},
		{"storage_driver", cfg.Storage.Driver},
		{"storage_path", str(cfg.Storage.Path)},
		{"storage_dsn", str(cfg.Storage.DSN)},
		{"server_port", strconv.Itoa(cfg.Server.Port)},
		{"server_debug", strconv.FormatBool(cfg.Server.Debug)},
		{"allowed_origins", str(strings.Join(cfg.Server.AllowedOrigins, ","))},
		{"metrics_enabled", strconv.FormatBool(cfg.Observability.MetricsEnabled)},
		{"tracing_endpoint", str(cfg.Observability.TracingEndpoint)},
	}
}

func printConfig(w io.Writer, cfg config.Config, meta config.Metadata) {
	if path := meta.Path(); path != "" {
		fmt.Fprintf(w, "%s %s\n\n", bold("config file:"), path)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("FIELD")+"\t"+bold("VALUE")+"\t"+bold("SOURCE"))
	for _, row := range configRows(cfg) {
		source := meta.Source(row.field)
		label := string(source)
		if source == config.SourceDefault {
			label = gray(label)
		} else {
			label = cyan(label)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.field, row.value, label)
	}
	_ = tw.Flush()
}
