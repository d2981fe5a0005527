package model

import "time"

type ReviewStatus string

const (
	ReviewStatusPendingModeration ReviewStatus = "PENDING_MODERATION"
	ReviewStatusPublished         ReviewStatus = "PUBLISHED"
	ReviewStatusFlagged           ReviewStatus = "FLAGGED"
	ReviewStatusRemoved           ReviewStatus = "REMOVED"
)

// Review is unique per (order, product, buyer).
type Review struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID   string `gorm:"type:varchar(36);not null;uniqueIndex:ux_reviews_order_product_buyer,priority:1" json:"order_id"`
	ProductID string `gorm:"type:varchar(36);not null;uniqueIndex:ux_reviews_order_product_buyer,priority:2;index" json:"product_id"`
	BuyerID   string `gorm:"type:varchar(36);not null;uniqueIndex:ux_reviews_order_product_buyer,priority:3;index" json:"buyer_id"`
	SellerID  string `gorm:"type:varchar(36);not null;index" json:"seller_id"`

	Rating  int          `gorm:"not null" json:"rating"`
	Title   string       `gorm:"type:varchar(200)" json:"title,omitempty"`
	Pros    string       `gorm:"type:text" json:"pros,omitempty"`
	Cons    string       `gorm:"type:text" json:"cons,omitempty"`
	Comment string       `gorm:"type:text;not null" json:"comment"`
	Status  ReviewStatus `gorm:"type:varchar(30);not null;index" json:"status"`

	HelpfulCount    int `gorm:"not null;default:0" json:"helpful_count"`
	NotHelpfulCount int `gorm:"not null;default:0" json:"not_helpful_count"`

	ModeratedBy    *string    `gorm:"type:varchar(36)" json:"moderated_by,omitempty"`
	ModeratedAt    *time.Time `json:"moderated_at,omitempty"`
	ModerationNote string     `gorm:"type:text" json:"moderation_note,omitempty"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (r Review) Editable() bool {
	return r.Status == ReviewStatusPendingModeration || r.Status == ReviewStatusPublished
}

type ReviewImage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReviewID  string    `gorm:"type:varchar(36);not null;index" json:"review_id"`
	FileID    string    `gorm:"type:varchar(36);not null" json:"file_id"`
	Position  int       `gorm:"not null" json:"position"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// ReviewVote is unique per (review, user).
type ReviewVote struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReviewID  string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_review_votes_review_user,priority:1" json:"review_id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_review_votes_review_user,priority:2" json:"user_id"`
	Helpful   bool      `gorm:"not null" json:"helpful"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ReviewReport is unique per (review, reporter).
type ReviewReport struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReviewID   string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_review_reports_review_reporter,priority:1" json:"review_id"`
	ReporterID string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_review_reports_review_reporter,priority:2" json:"reporter_id"`
	Reason     string     `gorm:"type:varchar(50);not null" json:"reason"`
	Details    string     `gorm:"type:text" json:"details,omitempty"`
	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

// ReviewResponse is the seller's single public answer to a review.
type ReviewResponse struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReviewID  string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"review_id"`
	SellerID  string    `gorm:"type:varchar(36);not null;index" json:"seller_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
