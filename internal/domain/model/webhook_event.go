package model

import "time"

// WebhookEvent is the persisted record of every verified provider event.
// (Provider, EventID) is the dedup key.
type WebhookEvent struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Provider        PaymentProvider `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID         string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"event_id"`
	EventType       string          `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         string          `gorm:"type:text" json:"-"`
	SignatureValid  bool            `gorm:"not null" json:"signature_valid"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ProcessingError string          `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}
