package notify

import (
	"context"

	"planmarket/internal/domain/event"
	"planmarket/internal/logging"
)

// LogNotifier only logs. Used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n event.Notification) error {
	logging.FromContext(ctx).Info("notification",
		"type", n.Type,
		"recipient_id", n.RecipientID,
		"data", n.Data,
	)
	return nil
}
