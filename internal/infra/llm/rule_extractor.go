package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	domain "marco/internal/domain/reminder"
)

var (
	relativePattern = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|days?)\b`)
	leadPattern     = regexp.MustCompile(`(?i)\b(\d+)\s*(?:minutes?|mins?)\s+before\b`)
	preamble        = regexp.MustCompile(`(?i)^\s*(?:please\s+)?remind\s+me\s+(?:to\s+)?`)
)

// RuleExtractor understands "in N minutes|hours|days" and "N minutes before"
// without calling a model. It backs the mock provider used when no API key is
// configured and in local runs.
type RuleExtractor struct {
	clock domain.Clock
}

// NewRuleExtractor creates a RuleExtractor reading time from clock.
func NewRuleExtractor(clock domain.Clock) *RuleExtractor {
	return &RuleExtractor{clock: domain.ClockOrSystem(clock)}
}

// Extract implements domain.IntentExtractor.
func (r *RuleExtractor) Extract(_ context.Context, rawText, localeHint string) domain.ExtractionResult {
	now := r.clock.Now()
	locale := domain.DetectLocale(rawText, localeHint)

	match := relativePattern.FindStringSubmatchIndex(rawText)
	if match == nil {
		return domain.Degraded(domain.DegradedIntent(rawText, now, locale), "no relative time expression")
	}
	amount, err := strconv.Atoi(rawText[match[2]:match[3]])
	if err != nil {
		return domain.Degraded(domain.DegradedIntent(rawText, now, locale), err.Error())
	}
	unit := strings.ToLower(rawText[match[4]:match[5]])

	var step time.Duration
	switch {
	case strings.HasPrefix(unit, "m"):
		step = time.Minute
	case strings.HasPrefix(unit, "h"):
		step = time.Hour
	default:
		step = 24 * time.Hour
	}

	task := rawText[:match[0]] + rawText[match[1]:]
	lead := domain.DefaultLeadMinutes
	if m := leadPattern.FindStringSubmatchIndex(task); m != nil {
		if n, err := strconv.Atoi(task[m[2]:m[3]]); err == nil {
			lead = n
		}
		task = task[:m[0]] + task[m[1]:]
	}
	task = preamble.ReplaceAllString(task, "")
	task = strings.Join(strings.Fields(task), " ")

	intent := domain.ParsedIntent{
		Task:        task,
		EventTime:   now.Add(time.Duration(amount) * step),
		LeadMinutes: lead,
		Locale:      locale,
	}
	return domain.OK(intent.Normalize(rawText))
}
