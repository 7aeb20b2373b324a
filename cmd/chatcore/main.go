package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"chatcore/internal/app"
	"chatcore/internal/config"
	"chatcore/internal/httpserver"
	"chatcore/internal/notify"
	"chatcore/internal/observability/logging"
	"chatcore/internal/observability/metrics"
)

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatcore",
		Short:         "Verification codes and chat read-tracking core",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = logging.NewLogger(logging.Config{
				ServiceName: cfg.AppName,
				Environment: cfg.Env,
				Level:       cfg.Log.Level,
				Format:      cfg.Log.Format,
			})
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(migrateCmd(), purgeCmd(), serveCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := app.Migrate(cfg.Database.Driver, db); err != nil {
				return err
			}
			logger.Info("migrations applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge-codes",
		Short: "Delete verification codes that expired long ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cfg, notify.NewLogSender(logger), logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			n, err := a.Verification.PurgeExpired(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired codes\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "only delete codes expired for longer than this")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification dispatcher, code purger and ops endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.MustRegister(cfg.AppName)

			a, err := app.New(cfg, notify.NewLogSender(logger), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go a.RunPurger(ctx, cfg.Verification.PurgeInterval, cfg.Verification.PurgeRetention)

			srv := &http.Server{
				Addr:         cfg.HTTPAddr(),
				Handler:      httpserver.NewRouter(a.DB, prometheus.DefaultGatherer, logger),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting ops server", "addr", cfg.HTTPAddr())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			var serveErr error
			select {
			case <-ctx.Done():
			case serveErr = <-errCh:
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", "error", err)
			}
			return errors.Join(serveErr, a.Close(shutdownCtx))
		},
	}
}
