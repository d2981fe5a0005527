package event

import "time"

type NotificationType string

const (
	NotifyOrderPaid        NotificationType = "order.paid"
	NotifyProductSold      NotificationType = "product.sold"
	NotifyOrderCancelled   NotificationType = "order.cancelled"
	NotifyOrderRefunded    NotificationType = "order.refunded"
	NotifyReviewPublished  NotificationType = "review.published"
	NotifyReviewResponse   NotificationType = "review.response"
	NotifyProductModerated NotificationType = "product.moderated"
)

// Notification is the fire-and-forget message handed to the notifier.
type Notification struct {
	Type        NotificationType  `json:"type"`
	RecipientID string            `json:"recipient_id"`
	Data        map[string]string `json:"data,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
