// Package reminder defines the reminder domain model and the ports the
// intake and dispatch pipeline depends on.
package reminder

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// DefaultLeadMinutes applies when the extractor yields no usable lead time.
	DefaultLeadMinutes = 10
	// DegradedEventOffset places a degraded intent one hour from now.
	DegradedEventOffset = time.Hour
	// UntitledTask names a reminder whose text carried nothing usable.
	UntitledTask = "Untitled Task"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrInvalidReminder  = errors.New("invalid reminder")
)

// Locale selects the language of user-facing replies.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleArabic  Locale = "ar"
)

// ParseLocale maps a BCP 47 hint ("ar-EG", "en_US", "ar") to a supported locale.
// Empty or unsupported hints return ok=false.
func ParseLocale(hint string) (Locale, bool) {
	hint = strings.TrimSpace(strings.ReplaceAll(hint, "_", "-"))
	if hint == "" {
		return "", false
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	switch base.String() {
	case "ar":
		return LocaleArabic, true
	case "en":
		return LocaleEnglish, true
	}
	return "", false
}

// ContainsArabic reports whether text has any character from the Arabic block.
func ContainsArabic(text string) bool {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

// DetectLocale picks the reply locale for text: Arabic script wins, then the
// caller hint, then English.
func DetectLocale(text, hint string) Locale {
	if ContainsArabic(text) {
		return LocaleArabic
	}
	if locale, ok := ParseLocale(hint); ok {
		return locale
	}
	return LocaleEnglish
}

// ParsedIntent is the structured guess produced from free text.
type ParsedIntent struct {
	Task        string    `json:"task"`
	EventTime   time.Time `json:"event_time"`
	LeadMinutes int       `json:"lead_minutes"`
	Locale      Locale    `json:"locale"`
}

// FireTime is the instant the notification for this intent must go out.
func (p ParsedIntent) FireTime() time.Time {
	return FireTimeFor(p.EventTime, p.LeadMinutes)
}

// Normalize enforces the intent invariants. An empty task falls back to the
// trimmed raw text, then to UntitledTask. Negative leads become the default.
func (p ParsedIntent) Normalize(raw string) ParsedIntent {
	p.Task = strings.TrimSpace(p.Task)
	if p.Task == "" {
		p.Task = strings.TrimSpace(raw)
	}
	if p.Task == "" {
		p.Task = UntitledTask
	}
	if p.LeadMinutes < 0 {
		p.LeadMinutes = DefaultLeadMinutes
	}
	if p.Locale == "" {
		p.Locale = LocaleEnglish
	}
	return p
}

// DegradedIntent is the fallback used whenever extraction cannot produce an answer.
func DegradedIntent(raw string, now time.Time, locale Locale) ParsedIntent {
	return ParsedIntent{
		Task:        raw,
		EventTime:   now.Add(DegradedEventOffset),
		LeadMinutes: DefaultLeadMinutes,
		Locale:      locale,
	}.Normalize(raw)
}

// FireTimeFor computes event - lead. Negative leads are clamped to zero so the
// fire time never lands after the event.
func FireTimeFor(event time.Time, leadMinutes int) time.Time {
	if leadMinutes < 0 {
		leadMinutes = 0
	}
	return event.Add(-time.Duration(leadMinutes) * time.Minute)
}

// ExtractionStatus tags an ExtractionResult.
type ExtractionStatus string

const (
	ExtractionOK       ExtractionStatus = "ok"
	ExtractionDegraded ExtractionStatus = "degraded"
)

// ExtractionResult is either a confident intent or a degraded fallback.
// Both variants carry a usable intent.
type ExtractionResult struct {
	Intent ParsedIntent
	Status ExtractionStatus
	Reason string
}

// OK wraps a confident extraction.
func OK(intent ParsedIntent) ExtractionResult {
	return ExtractionResult{Intent: intent, Status: ExtractionOK}
}

// Degraded wraps a fallback extraction with the reason it was needed.
func Degraded(intent ParsedIntent, reason string) ExtractionResult {
	return ExtractionResult{Intent: intent, Status: ExtractionDegraded, Reason: reason}
}

// IsDegraded reports whether the extractor fell back.
func (r ExtractionResult) IsDegraded() bool {
	return r.Status == ExtractionDegraded
}

// Reminder is a confirmed, durable reminder.
type Reminder struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq"`
	UserID       int64     `json:"user_id"`
	Task         string    `json:"task"`
	EventTime    time.Time `json:"event_time"`
	FireTime     time.Time `json:"fire_time"`
	Fired        bool      `json:"fired"`
	Attempts     int       `json:"attempts"`
	DeadLettered bool      `json:"dead_lettered"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewReminder builds an unfired reminder from a confirmed intent.
func NewReminder(userID int64, intent ParsedIntent, now time.Time) Reminder {
	return Reminder{
		UserID:    userID,
		Task:      intent.Task,
		EventTime: intent.EventTime,
		FireTime:  intent.FireTime(),
		CreatedAt: now,
	}
}

// Validate checks the structural invariants of a reminder.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return errors.Join(ErrInvalidReminder, errors.New("task is empty"))
	}
	if r.EventTime.IsZero() || r.FireTime.IsZero() {
		return errors.Join(ErrInvalidReminder, errors.New("event and fire time are required"))
	}
	if r.FireTime.After(r.EventTime) {
		return errors.Join(ErrInvalidReminder, errors.New("fire time is after event time"))
	}
	return nil
}

// Dispatchable reports whether the scheduler may still deliver the reminder.
func (r Reminder) Dispatchable() bool {
	return !r.Fired && !r.DeadLettered
}

// Less orders reminders by fire time, then insertion sequence.
func (r Reminder) Less(other Reminder) bool {
	if !r.FireTime.Equal(other.FireTime) {
		return r.FireTime.Before(other.FireTime)
	}
	return r.Seq < other.Seq
}

// Snapshot is the durable image of the registry, in insertion order.
type Snapshot struct {
	Reminders []Reminder
}
