package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/taste-genome/internal/api"
	"github.com/danielpatrickdp/taste-genome/internal/config"
	"github.com/danielpatrickdp/taste-genome/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

// #region serve

func serveCmd(configPath *string) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the audience refresh scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without background audience refresh")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, withScheduler bool) error {
	logger := cfg.Log.Logger(os.Stderr)
	e, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	if withScheduler {
		sched, err := scheduler.New(e.orch, scheduler.Config{
			Spec:        cfg.Scheduler.Cron,
			Lookback:    cfg.Scheduler.Lookback,
			Parallelism: cfg.Scheduler.Parallelism,
			RunTimeout:  shutdownTimeout * 4,
		}, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(e.orch, e.catalog.Archetypes(), e.metrics.Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taste genome listening",
			"addr", cfg.HTTP.Addr, "db_driver", cfg.Database.Driver, "sidecar", cfg.Sidecar.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// #endregion serve
