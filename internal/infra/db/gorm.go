package db

import (
	"context"
	"fmt"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres pool and checks it with a ping.
func Connect(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}
	if cfg.IsProd() {
		gormCfg.Logger = logger.Default.LogMode(logger.Error)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return gdb, nil
}

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.BuyerProfile{},
		&model.SellerProfile{},
		&model.RefreshToken{},
		&model.Product{},
		&model.StoredFile{},
		&model.BillingAddress{},
		&model.CartItem{},
		&model.FeeConfig{},
		&model.Order{},
		&model.OrderItem{},
		&model.DownloadToken{},
		&model.Review{},
		&model.ReviewImage{},
		&model.ReviewVote{},
		&model.ReviewReport{},
		&model.ReviewResponse{},
		&model.ProductRating{},
		&model.SellerRating{},
		&model.Transaction{},
		&model.WebhookEvent{},
		&model.AuditLog{},
	}
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
