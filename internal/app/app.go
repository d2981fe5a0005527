// Package app wires repositories, adapters and usecases together for the
// API server and the maintenance CLI.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/payment"
	"planmarket/internal/infra/cache"
	"planmarket/internal/infra/notify"
	infrapay "planmarket/internal/infra/payment"
	infraRepo "planmarket/internal/infra/repository"
	"planmarket/internal/infra/storage"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"
	"planmarket/internal/validator"

	"gorm.io/gorm"
)

type App struct {
	Users repository.UserRepository

	Auth           *usecase.AuthUsecase
	Products       *usecase.ProductUsecase
	Cart           *usecase.CartUsecase
	Checkout       *usecase.CheckoutUsecase
	Orders         *usecase.OrderUsecase
	AdminOrders    *usecase.AdminOrderUsecase
	StateMachine   *usecase.OrderStateMachine
	Downloads      *usecase.DownloadUsecase
	Reviews        *usecase.ReviewUsecase
	Webhooks       *usecase.WebhookUsecase
	BillingAddress *usecase.BillingAddressUsecase

	IDs usecase.IDGenerator

	closers []io.Closer
}

const (
	notifyQueueSize   = 1024
	notifySendTimeout = 5 * time.Second
)

// Build connects the optional infrastructure (redis, kafka, payment
// providers) that cfg enables and falls back to in-process versions.
func Build(cfg config.Config, policy config.Policy, gdb *gorm.DB, log *slog.Logger) (*App, error) {
	a := &App{IDs: usecase.RandomIDs{}}
	clock := usecase.UTCClock{}

	users := infraRepo.NewUserGormRepository(gdb)
	profiles := infraRepo.NewProfileGormRepository(gdb)
	refreshTokens := infraRepo.NewRefreshTokenGormRepository(gdb)
	products := infraRepo.NewProductGormRepository(gdb)
	files := infraRepo.NewFileGormRepository(gdb)
	cartItems := infraRepo.NewCartItemGormRepository(gdb)
	fees := infraRepo.NewFeeConfigGormRepository(gdb)
	orders := infraRepo.NewOrderGormRepository(gdb)
	orderItems := infraRepo.NewOrderItemGormRepository(gdb)
	tokens := infraRepo.NewDownloadTokenGormRepository(gdb)
	reviews := infraRepo.NewReviewGormRepository(gdb)
	feedback := infraRepo.NewReviewFeedbackGormRepository(gdb)
	ratings := infraRepo.NewRatingGormRepository(gdb)
	audit := infraRepo.NewAuditLogGormRepository(gdb)
	webhookEvents := infraRepo.NewWebhookEventGormRepository(gdb)
	addresses := infraRepo.NewBillingAddressGormRepository(gdb)
	tx := infraRepo.NewTxManagerGorm(gdb)
	a.Users = users

	store, err := storage.NewDiskStore(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	var sender notify.Notifier = notify.LogNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		sender = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("notifications via kafka", "topic", cfg.KafkaTopic)
	}
	// the dispatcher owns the sender and closes it after draining
	dispatcher := notify.NewDispatcher(sender, notifyQueueSize, notifySendTimeout)
	a.closers = append(a.closers, dispatcher)
	var notifier usecase.Notifier = dispatcher

	var dedup usecase.ProcessedEventCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb)
		dedup = cache.NewRedisEventCache(rdb, policy.WebhookDedupTTL)
		log.Info("webhook dedup via redis", "addr", cfg.RedisAddr)
	} else {
		dedup = cache.NewMemoryEventCache(policy.WebhookDedupCapacity, policy.WebhookDedupTTL)
	}

	gateways := buildGateways(cfg)
	for _, g := range gateways {
		log.Info("payment provider enabled", "provider", g.Provider())
	}

	feeEngine := usecase.NewFeeEngine(fees, policy)
	a.StateMachine = usecase.NewOrderStateMachine(tx, notifier, policy, a.IDs, clock)
	a.Auth = usecase.NewAuthUsecase(cfg, tx, users, refreshTokens, validator.NewAuthValidator(users), a.IDs, clock)
	a.Products = usecase.NewProductUsecase(tx, products, profiles, files, ratings, store, notifier, a.IDs, clock)
	a.Cart = usecase.NewCartUsecase(cartItems, products, profiles, feeEngine, policy, a.IDs, clock)
	a.Checkout = usecase.NewCheckoutUsecase(tx, a.Cart, orders, orderItems, addresses, profiles,
		gateways, a.StateMachine, policy, cfg.PublicURL, a.IDs, clock)
	a.Orders = usecase.NewOrderUsecase(orders, orderItems)
	a.AdminOrders = usecase.NewAdminOrderUsecase(orders, orderItems, audit, gateways, a.StateMachine)
	a.Downloads = usecase.NewDownloadUsecase(tx, tokens, orders, products, files, store, policy, a.IDs, clock)
	a.Reviews = usecase.NewReviewUsecase(tx, reviews, feedback, ratings, orders, orderItems, files,
		notifier, policy, a.IDs, clock)
	a.Webhooks = usecase.NewWebhookUsecase(webhookEvents, orders, gateways, a.StateMachine, dedup, a.IDs, clock)
	a.BillingAddress = usecase.NewBillingAddressUsecase(addresses, a.IDs, clock)
	return a, nil
}

func buildGateways(cfg config.Config) []payment.Gateway {
	var out []payment.Gateway
	if cfg.StripeSecretKey != "" {
		out = append(out, infrapay.NewStripeGateway(infrapay.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, nil))
	}
	if cfg.PayPalClientID != "" {
		base := infrapay.PayPalLiveURL
		if cfg.PayPalSandbox {
			base = infrapay.PayPalSandboxURL
		}
		out = append(out, infrapay.NewPayPalGateway(infrapay.PayPalConfig{
			ClientID:  cfg.PayPalClientID,
			Secret:    cfg.PayPalSecret,
			WebhookID: cfg.PayPalWebhookID,
			BaseURL:   base,
		}, &http.Client{Timeout: 15 * time.Second}))
	}
	return out
}

// Close releases broker and cache connections in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = fmt.Errorf("close: %w", err)
		}
	}
	a.closers = nil
	return first
}
