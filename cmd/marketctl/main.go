package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"planmarket/internal/app"
	"planmarket/internal/config"
	"planmarket/internal/infra/db"
	"planmarket/internal/logging"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type env struct {
	cfg    config.Config
	policy config.Policy
	log    *slog.Logger
	gdb    *gorm.DB
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	e := &env{}

	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Maintenance tasks for the plan marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			policy, err := config.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return err
			}
			e.cfg, e.policy = cfg, policy
			e.log = logging.New(cfg.LogLevel)
			slog.SetDefault(e.log)

			gdb, err := db.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			e.gdb = gdb
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file")

	root.AddCommand(newMigrateCmd(e), newSweepCmd(e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Migrate(e.gdb); err != nil {
				return err
			}
			e.log.Info("migration finished")
			return nil
		},
	}
}

func newSweepCmd(e *env) *cobra.Command {
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run background clean-up jobs",
	}

	jobs := map[string]func(ctx context.Context, a *app.App) error{
		"carts": func(ctx context.Context, a *app.App) error {
			n, err := a.Cart.SweepAbandoned(ctx)
			if err == nil {
				e.log.Info("abandoned cart items removed", "count", n)
			}
			return err
		},
		"tokens": func(ctx context.Context, a *app.App) error {
			n, err := a.Downloads.SweepExpired(ctx)
			if err == nil {
				e.log.Info("expired download tokens deactivated", "count", n)
			}
			return err
		},
		"orders": func(ctx context.Context, a *app.App) error {
			n, err := a.Checkout.SweepExpiredPending(ctx)
			if err == nil {
				e.log.Info("expired pending orders cancelled", "count", n)
			}
			return err
		},
		"refunds": func(ctx context.Context, a *app.App) error {
			n, err := a.Checkout.SweepClosedOrderRefunds(ctx)
			if err == nil {
				e.log.Info("payments on closed orders refunded", "count", n)
			}
			return err
		},
	}
	order := []string{"carts", "tokens", "orders", "refunds"}

	runJobs := func(cmd *cobra.Command, names []string) error {
		a, err := app.Build(e.cfg, e.policy, e.gdb, e.log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := logging.IntoContext(cmd.Context(), e.log)
		for _, name := range names {
			if err := jobs[name](ctx, a); err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
		}
		return nil
	}

	for _, name := range order {
		name := name
		sweep.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Sweep " + name,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runJobs(cmd, []string{name})
			},
		})
	}
	sweep.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run every sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, order)
		},
	})
	return sweep
}
