package usecase

import (
	"context"
	"fmt"
	"strings"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

type FeeLineType string

const (
	FeeLinePlatform FeeLineType = "PLATFORM_FEE"
	FeeLineCategory FeeLineType = "CATEGORY_FEE"
	FeeLinePayment  FeeLineType = "PAYMENT_FEE"
)

type FeeLine struct {
	Type      FeeLineType     `json:"type"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
	ProductID string          `json:"product_id,omitempty"`
}

type FeeItem struct {
	ProductID string
	Category  string
	Amount    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// FeeEngine resolves fee lines from the active fee rules. It has no side
// effects: the same rules and inputs always produce the same lines.
type FeeEngine struct {
	fees   repo.FeeConfigRepository
	policy config.Policy
}

func NewFeeEngine(fees repo.FeeConfigRepository, policy config.Policy) *FeeEngine {
	return &FeeEngine{fees: fees, policy: policy}
}

func (e *FeeEngine) CalculateFees(
	ctx context.Context,
	subtotal decimal.Decimal,
	items []FeeItem,
	country *string,
	paymentMethod *string,
) ([]FeeLine, error) {
	rules, err := e.fees.ListActive(ctx, normalizeCountry(country))
	if err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}

	lines := make([]FeeLine, 0, 2+len(items))

	base, ok := firstRule(rules, func(r model.FeeConfig) bool {
		return r.Type == model.FeeTypePlatform && r.Category == nil
	})
	if ok {
		lines = append(lines, FeeLine{
			Type:   FeeLinePlatform,
			Name:   base.Name,
			Rate:   base.Rate,
			Amount: applyRule(base, subtotal),
		})
	} else {
		lines = append(lines, FeeLine{
			Type:   FeeLinePlatform,
			Name:   "Platform fee",
			Rate:   e.policy.DefaultPlatformRate,
			Amount: subtotal.Mul(e.policy.DefaultPlatformRate).Div(hundred).Round(2),
		})
	}

	for _, it := range items {
		if it.Category == "" {
			continue
		}
		rule, ok := firstRule(rules, func(r model.FeeConfig) bool {
			return r.Type == model.FeeTypePlatform && r.Category != nil && strings.EqualFold(*r.Category, it.Category)
		})
		if !ok {
			continue
		}
		lines = append(lines, FeeLine{
			Type:      FeeLineCategory,
			Name:      rule.Name,
			Rate:      rule.Rate,
			Amount:    applyRule(rule, it.Amount),
			ProductID: it.ProductID,
		})
	}

	if paymentMethod != nil && *paymentMethod != "" {
		rule, ok := firstRule(rules, func(r model.FeeConfig) bool {
			return r.Type == model.FeeTypePaymentProcessing &&
				r.PaymentMethod != nil && strings.EqualFold(*r.PaymentMethod, *paymentMethod)
		})
		if ok {
			lines = append(lines, FeeLine{
				Type:   FeeLinePayment,
				Name:   rule.Name,
				Rate:   rule.Rate,
				Amount: applyRule(rule, subtotal),
			})
		}
	}

	return lines, nil
}

// BaseRate is the platform rate the lines were computed with.
func BaseRate(lines []FeeLine) decimal.Decimal {
	for _, l := range lines {
		if l.Type == FeeLinePlatform {
			return l.Rate
		}
	}
	return decimal.Zero
}

func SumFees(lines []FeeLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// applyRule computes base*rate/100 + fixed, clamps to [min, max] and rounds
// half away from zero to cents.
func applyRule(r model.FeeConfig, base decimal.Decimal) decimal.Decimal {
	amount := base.Mul(r.Rate).Div(hundred).Add(r.FixedAmount)
	if r.MinAmount.Valid && amount.LessThan(r.MinAmount.Decimal) {
		amount = r.MinAmount.Decimal
	}
	if r.MaxAmount.Valid && amount.GreaterThan(r.MaxAmount.Decimal) {
		amount = r.MaxAmount.Decimal
	}
	return amount.Round(2)
}

// rules arrive sorted by priority desc
func firstRule(rules []model.FeeConfig, match func(model.FeeConfig) bool) (model.FeeConfig, bool) {
	for _, r := range rules {
		if match(r) {
			return r, true
		}
	}
	return model.FeeConfig{}, false
}

func normalizeCountry(country *string) *string {
	if country == nil {
		return nil
	}
	c := strings.ToUpper(strings.TrimSpace(*country))
	if c == "" {
		return nil
	}
	return &c
}
