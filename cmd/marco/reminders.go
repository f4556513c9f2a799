package main

import (
	"fmt"
	"time"

	"marco/internal/di"
	domain "marco/internal/domain/reminder"

	"github.com/spf13/cobra"
)

func newRemindersCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and dispatch stored reminders",
	}
	cmd.AddCommand(newRemindersListCommand(c))
	cmd.AddCommand(newRemindersDueCommand(c))
	cmd.AddCommand(newRemindersDispatchCommand(c))
	return cmd
}

func newRemindersListCommand(c *cli) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders in fire order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withContainer(cmd.Context(), func(container *di.Container) error {
				var reminders []domain.Reminder
				if userID != 0 {
					reminders = container.Registry.ForUser(userID)
				} else {
					reminders = container.Registry.All()
				}
				printReminders(cmd.OutOrStdout(), reminders, location(container))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "only show reminders for this user id")
	return cmd
}

func newRemindersDueCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List reminders whose fire time has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withContainer(cmd.Context(), func(container *di.Container) error {
				printReminders(cmd.OutOrStdout(), container.Registry.DueAsOf(time.Now()), location(container))
				return nil
			})
		},
	}
}

func newRemindersDispatchCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a single dispatch tick with the configured notifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withContainer(cmd.Context(), func(container *di.Container) error {
				report := container.Dispatcher.RunOnce(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "due=%d fired=%s failed=%s dead_lettered=%s\n",
					report.Due, green(report.Fired), yellow(report.Failed), red(report.DeadLettered))
				if report.Failed > 0 {
					return &ExitCodeError{Code: 2, Err: fmt.Errorf("%d of %d deliveries failed", report.Failed, report.Due)}
				}
				fmt.Fprintln(out, successText("dispatch complete"))
				return nil
			})
		},
	}
}

func location(container *di.Container) *time.Location {
	loc, err := container.Config.Runtime.Location()
	if err != nil {
		return time.Local
	}
	return loc
}
