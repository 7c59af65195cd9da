package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/ink-prompts/internal/config"
	"github.com/jonathan/ink-prompts/internal/scheduler"
	"github.com/jonathan/ink-prompts/internal/server"
	"github.com/jonathan/ink-prompts/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the prompt endpoints. When the scheduler is
enabled the daily sweep and the stuck job reconciler also run in-process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	cfg := a.cfg
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	jwtCfg, err := config.NewJWTConfig(cfg.Auth)
	if err != nil {
		return err
	}
	if cfg.Auth.CronSecret == "" && !cfg.IsDevelopment() {
		a.logger.Warn().Msg("CRON_SECRET not set; the cron endpoint will reject every request")
	}

	// Jobs left non-terminal by a previous process are failed up front.
	if n, err := a.orchestrator.ReconcileStuckJobs(ctx); err != nil {
		a.logger.Error().Err(err).Msg("startup reconciliation failed")
	} else if n > 0 {
		a.logger.Info().Int64("jobs", n).Msg("failed stale jobs at startup")
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(a)
		if err != nil {
			return err
		}
		sched.Start()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			Enabled:         true,
			CleanupInterval: 5 * time.Minute,
			EndpointConfigs: ratelimit.GenerationEndpoints(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		})
	}

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		CronSecret:      cfg.Auth.CronSecret,
		DevMode:         cfg.IsDevelopment(),
	}, server.Deps{
		Store:       a.store,
		Generator:   a.orchestrator,
		JWT:         server.NewJWTService(jwtCfg),
		RateLimiter: limiter,
		Logger:      &a.logger,
	})

	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
		}
	}
	if err := a.orchestrator.Dispatcher().Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("background jobs still running at shutdown")
	}
	return serveErr
}

// newScheduler registers the daily sweep and the reconciler.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(a.cfg.Scheduler.Timezone, &a.logger)
	if err != nil {
		return nil, err
	}

	if err := sched.AddJob("daily-prompts", a.cfg.Scheduler.DailySpec, func(ctx context.Context) error {
		_, err := a.orchestrator.RunDailyGenerationForAllUsers(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule daily sweep: %w", err)
	}

	if err := sched.AddJob("reconcile-jobs", a.cfg.Scheduler.ReconcileSpec, func(ctx context.Context) error {
		_, err := a.orchestrator.ReconcileStuckJobs(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule reconciler: %w", err)
	}
	return sched, nil
}
