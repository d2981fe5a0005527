package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingStats is derived from the PUBLISHED review set. Never edited by hand.
type RatingStats struct {
	TotalReviews       int             `gorm:"not null;default:0" json:"total_reviews"`
	AverageRating      decimal.Decimal `gorm:"type:decimal(3,2);not null" json:"average_rating"`
	OneStar            int             `gorm:"not null;default:0" json:"one_star"`
	TwoStar            int             `gorm:"not null;default:0" json:"two_star"`
	ThreeStar          int             `gorm:"not null;default:0" json:"three_star"`
	FourStar           int             `gorm:"not null;default:0" json:"four_star"`
	FiveStar           int             `gorm:"not null;default:0" json:"five_star"`
	RecommendationRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"recommendation_rate"`
}

type ProductRating struct {
	ProductID string `gorm:"type:varchar(36);primaryKey" json:"product_id"`
	RatingStats
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type SellerRating struct {
	SellerID string `gorm:"type:varchar(36);primaryKey" json:"seller_id"`
	RatingStats
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ComputeRatingStats recomputes the aggregate from scratch.
// Out-of-range ratings are ignored.
func ComputeRatingStats(ratings []int) RatingStats {
	var s RatingStats
	sum := 0
	recommended := 0
	for _, r := range ratings {
		switch r {
		case 1:
			s.OneStar++
		case 2:
			s.TwoStar++
		case 3:
			s.ThreeStar++
		case 4:
			s.FourStar++
		case 5:
			s.FiveStar++
		default:
			continue
		}
		s.TotalReviews++
		sum += r
		if r >= 4 {
			recommended++
		}
	}

	s.AverageRating = decimal.Zero
	s.RecommendationRate = decimal.Zero
	if s.TotalReviews == 0 {
		return s
	}

	total := decimal.NewFromInt(int64(s.TotalReviews))
	s.AverageRating = decimal.NewFromInt(int64(sum)).Div(total).Round(2)
	s.RecommendationRate = decimal.NewFromInt(int64(recommended)).
		Mul(decimal.NewFromInt(100)).
		Div(total).
		Round(2)
	return s
}
