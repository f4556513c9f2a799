package telegram

import (
	"context"

	appreminder "marco/internal/app/reminder"
	domain "marco/internal/domain/reminder"
)

// Sender sends a text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Notifier delivers fired reminders as chat messages. Reminders are created
// from private chats, so the user id doubles as the chat id.
type Notifier struct {
	sender Sender
}

// NewNotifier wraps sender.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify implements domain.Notifier.
func (n *Notifier) Notify(ctx context.Context, userID int64, task string) error {
	locale := domain.DetectLocale(task, "")
	return n.sender.SendMessage(ctx, userID, appreminder.NotificationMessage(task, locale))
}
