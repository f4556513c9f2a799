package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	domain "marco/internal/domain/reminder"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string {
	return red("✗ " + msg)
}

func successText(msg string) string {
	return green("✓ " + msg)
}

func statusLabel(rem domain.Reminder) string {
	switch {
	case rem.DeadLettered:
		return red("dead")
	case rem.Fired:
		return gray("fired")
	case rem.Attempts > 0:
		return yellow(fmt.Sprintf("retrying(%d)", rem.Attempts))
	default:
		return cyan("pending")
	}
}

// printReminders writes one aligned row per reminder.
func printReminders(w io.Writer, reminders []domain.Reminder, loc *time.Location) {
	if len(reminders) == 0 {
		fmt.Fprintln(w, gray("no reminders"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("ID")+"\t"+bold("USER")+"\t"+bold("FIRES AT")+"\t"+bold("EVENT AT")+"\t"+bold("STATUS")+"\t"+bold("TASK"))
	for _, rem := range reminders {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			rem.ID,
			rem.UserID,
			rem.FireTime.In(loc).Format("2006-01-02 15:04"),
			rem.EventTime.In(loc).Format("2006-01-02 15:04"),
			statusLabel(rem),
			rem.Task,
		)
	}
	_ = tw.Flush()
	fmt.Fprintln(w, gray(fmt.Sprintf("%d reminder(s)", len(reminders))))
}
