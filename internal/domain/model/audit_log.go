package model

import "time"

type AuditAction string

const (
	AuditActionUpdateOrderStatus   AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionUpdateProductStatus AuditAction = "UPDATE_PRODUCT_STATUS"
	AuditActionModerateReview      AuditAction = "MODERATE_REVIEW"
	AuditActionRegenerateToken     AuditAction = "REGENERATE_DOWNLOAD_TOKEN"
	AuditActionForceLogout         AuditAction = "FORCE_LOGOUT"
)

type AuditResourceType string

const (
	AuditResourceProduct       AuditResourceType = "product"
	AuditResourceOrder         AuditResourceType = "order"
	AuditResourceUser          AuditResourceType = "user"
	AuditResourceReview        AuditResourceType = "review"
	AuditResourceDownloadToken AuditResourceType = "download_token"
)

// Actor recorded for transitions driven by provider webhooks and sweeps.
const SystemActor = "system"

// AuditLog records who changed what, with before/after JSON snapshots.
type AuditLog struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	ActorUserID  string            `gorm:"type:varchar(36);not null;index" json:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   string            `gorm:"type:varchar(36);not null;index" json:"resource_id"`
	BeforeJSON   string            `gorm:"type:text" json:"before_json"`
	AfterJSON    string            `gorm:"type:text" json:"after_json"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}
