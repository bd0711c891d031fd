package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/windimenu/windi/internal/affiliate"
	"github.com/windimenu/windi/internal/audit"
	"github.com/windimenu/windi/internal/authorization"
	"github.com/windimenu/windi/internal/bootstrap"
	"github.com/windimenu/windi/internal/business"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/migration"
	"github.com/windimenu/windi/internal/mirror"
	"github.com/windimenu/windi/internal/observability"
	"github.com/windimenu/windi/internal/payment"
	"github.com/windimenu/windi/internal/payout"
	"github.com/windimenu/windi/internal/plan"
	"github.com/windimenu/windi/internal/quota"
	"github.com/windimenu/windi/internal/redis"
	"github.com/windimenu/windi/internal/scheduler"
	"github.com/windimenu/windi/internal/server"
	"github.com/windimenu/windi/internal/subscription"
	"github.com/windimenu/windi/pkg/db"
	"github.com/windimenu/windi/pkg/ids"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "windi",
		Short:   "Windi billing core",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newWorkerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the mirror push worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(serveOptions()...).Run()
			return nil
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the mirror worker and the periodic pull",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(workerOptions()...).Run()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then the API, mirror worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			opts := append(serveOptions(), scheduler.Module)
			fx.New(opts...).Run()
			return nil
		},
	}
}

func baseOptions() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		ids.Module,
		db.Module,
		clock.Module,
	}
}

func runMigrate() error {
	app := fx.New(append(baseOptions(), migration.Module)...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func serveOptions() []fx.Option {
	return append(baseOptions(),
		bootstrap.Module,
		redis.Module,
		mirror.Module,
		business.Module,
		plan.Module,
		affiliate.Module,
		payment.Module,
		subscription.Module,
		payout.Module,
		quota.Module,
		authorization.Module,
		audit.Module,
		server.Module,
		mirror.WorkerModule,
	)
}

func workerOptions() []fx.Option {
	return append(baseOptions(),
		bootstrap.Module,
		redis.Module,
		mirror.Module,
		mirror.WorkerModule,
		scheduler.Module,
	)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
