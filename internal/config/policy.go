package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Hosted checkout sessions cannot be shorter than this at any provider.
const minCheckoutSessionTTL = 31 * time.Minute

// Policy is the marketplace rule set. Values can come from a YAML file and be
// overridden with MARKET_* environment variables (MARKET_CART_LIMIT, ...).
type Policy struct {
	CartLimit            int
	CartAbandonAfter     time.Duration
	CheckoutSessionTTL   time.Duration
	DownloadLimit        int
	DownloadTTL          time.Duration
	ReviewImageLimit     int
	ReportFlagThreshold  int
	ModerationDenylist   []string
	FlagOneStarReviews   bool
	DefaultPlatformRate  decimal.Decimal
	Currency             string
	WebhookDedupCapacity int
	WebhookDedupTTL      time.Duration
	PendingSweepBatch    int
}

func setPolicyDefaults(v *viper.Viper) {
	v.SetDefault("cart.limit", 10)
	v.SetDefault("cart.abandon_after", "720h")
	v.SetDefault("checkout.session_ttl", "24h")
	v.SetDefault("checkout.currency", "usd")
	v.SetDefault("checkout.pending_sweep_batch", 500)
	v.SetDefault("download.limit", 5)
	v.SetDefault("download.ttl", "720h")
	v.SetDefault("review.image_limit", 5)
	v.SetDefault("review.report_flag_threshold", 3)
	v.SetDefault("review.denylist", []string{"spam", "fake", "scam", "click here", "buy now"})
	v.SetDefault("review.flag_one_star", true)
	v.SetDefault("fees.default_platform_rate", "10")
	v.SetDefault("webhook.dedup_capacity", 10000)
	v.SetDefault("webhook.dedup_ttl", "72h")
}

// DefaultPolicy returns the built-in policy without reading any file.
func DefaultPolicy() Policy {
	p, _ := LoadPolicy("")
	return p
}

// LoadPolicy reads path when given. A missing path falls back to defaults.
func LoadPolicy(path string) (Policy, error) {
	v := viper.New()
	setPolicyDefaults(v)

	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
		}
	}

	rate, err := decimal.NewFromString(v.GetString("fees.default_platform_rate"))
	if err != nil {
		return Policy{}, fmt.Errorf("fees.default_platform_rate: %w", err)
	}

	p := Policy{
		CartLimit:            v.GetInt("cart.limit"),
		CartAbandonAfter:     v.GetDuration("cart.abandon_after"),
		CheckoutSessionTTL:   v.GetDuration("checkout.session_ttl"),
		DownloadLimit:        v.GetInt("download.limit"),
		DownloadTTL:          v.GetDuration("download.ttl"),
		ReviewImageLimit:     v.GetInt("review.image_limit"),
		ReportFlagThreshold:  v.GetInt("review.report_flag_threshold"),
		ModerationDenylist:   normalizeTerms(v.GetStringSlice("review.denylist")),
		FlagOneStarReviews:   v.GetBool("review.flag_one_star"),
		DefaultPlatformRate:  rate,
		Currency:             strings.ToLower(v.GetString("checkout.currency")),
		WebhookDedupCapacity: v.GetInt("webhook.dedup_capacity"),
		WebhookDedupTTL:      v.GetDuration("webhook.dedup_ttl"),
		PendingSweepBatch:    v.GetInt("checkout.pending_sweep_batch"),
	}

	if p.CartLimit <= 0 {
		return Policy{}, fmt.Errorf("cart.limit must be positive")
	}
	if p.DownloadLimit <= 0 {
		return Policy{}, fmt.Errorf("download.limit must be positive")
	}
	if p.CheckoutSessionTTL <= 0 || p.DownloadTTL <= 0 {
		return Policy{}, fmt.Errorf("checkout.session_ttl and download.ttl must be positive")
	}
	if p.CheckoutSessionTTL < minCheckoutSessionTTL {
		return Policy{}, fmt.Errorf("checkout.session_ttl must be at least %s", minCheckoutSessionTTL)
	}
	return p, nil
}

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
