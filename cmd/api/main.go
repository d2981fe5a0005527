package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"planmarket/internal/app"
	"planmarket/internal/config"
	"planmarket/internal/handler"
	"planmarket/internal/infra/db"
	"planmarket/internal/logging"
	"planmarket/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	if !cfg.IsProd() {
		if err := db.Migrate(gdb); err != nil {
			return err
		}
	}

	a, err := app.Build(cfg, policy, gdb, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()

	e := server.New(cfg, log, server.Handlers{
		Users:          a.Users,
		Auth:           handler.NewAuthHandler(a.Auth, a.IDs, cfg),
		AdminUsers:     handler.NewAdminUserHandler(cfg, a.Users, a.Auth),
		Products:       handler.NewProductHandler(a.Products),
		AdminProducts:  handler.NewAdminProductHandler(a.Products),
		Cart:           handler.NewCartHandler(a.Cart),
		Orders:         handler.NewOrderHandler(a.Orders, a.Checkout, a.Downloads),
		AdminOrders:    handler.NewAdminOrderHandler(a.AdminOrders),
		Downloads:      handler.NewDownloadHandler(a.Downloads),
		Reviews:        handler.NewReviewHandler(a.Reviews),
		Webhooks:       handler.NewWebhookHandler(a.Webhooks),
		BillingAddress: handler.NewBillingAddressHandler(a.BillingAddress),
	})

	return server.Run(ctx, e, ":"+cfg.Port, log)
}
