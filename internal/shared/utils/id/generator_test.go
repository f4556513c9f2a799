package id

import (
	"context"
	"strings"
	"testing"
)

func TestNewReminderIDUsesPrefixAndIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		got := NewReminderID()
		if !strings.HasPrefix(got, "rem-") {
			t.Fatalf("expected rem- prefix, got %q", got)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = struct{}{}
	}
}

func TestNewLogIDIsUUIDv7(t *testing.T) {
	got := NewLogID()
	body := strings.TrimPrefix(got, "log-")
	if len(body) != 36 || strings.Count(body, "-") != 4 || body[14] != '7' {
		t.Fatalf("expected uuid v7 body, got %q", got)
	}
}

func TestEnsureLogIDKeepsExisting(t *testing.T) {
	ctx := WithLogID(context.Background(), "log-fixed")
	ctx, logID := EnsureLogID(ctx, func() string { return "log-new" })
	if logID != "log-fixed" || LogIDFromContext(ctx) != "log-fixed" {
		t.Fatalf("expected existing log id to be kept, got %q", logID)
	}

	_, generated := EnsureLogID(context.Background(), func() string { return "log-new" })
	if generated != "log-new" {
		t.Fatalf("expected generated log id, got %q", generated)
	}
}

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if got := UserIDFromContext(ctx); got != 42 {
		t.Fatalf("UserIDFromContext = %d, want 42", got)
	}
	if got := UserIDFromContext(context.Background()); got != 0 {
		t.Fatalf("expected 0 for empty context, got %d", got)
	}
}
