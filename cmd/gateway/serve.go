package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/openfinance-gateway/internal/audit"
	"github.com/xela07ax/openfinance-gateway/internal/engine"
	"github.com/xela07ax/openfinance-gateway/internal/infra"
	"github.com/xela07ax/openfinance-gateway/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics exporter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *infra.Config) error {
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 1. Decision cores
	guardrail, estimator, err := buildCore(cfg)
	if err != nil {
		return fmt.Errorf("build decision core: %w", err)
	}

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := engine.NewMetrics(reg)

	// 3. Decision journal, flushed in batches off the request path
	journal := audit.NewJournal(audit.NewLogSink(logger), audit.Options{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()
	metrics.TrackJournal(journal)

	// SIGINT/SIGTERM stop the listeners and background goroutines
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4. Control plane: kill-switch over Redis
	var blocker engine.AgentBlocker
	if cfg.Redis.Addr != "" {
		rdb := newRedisClient(cfg.Redis)
		defer rdb.Close()

		ksm := engine.NewKillSwitchManager(rdb, logger)
		if err := engine.Retry(appCtx, logger, "kill-switch", redisRetryPolicy(cfg.Redis), ksm.Init); err != nil {
			return fmt.Errorf("init kill-switch: %w", err)
		}
		go ksm.StartListener(appCtx)
		blocker = ksm
	} else {
		logger.Warn("kill-switch disabled, redis.addr is empty")
	}

	// 5. Perimeter
	opts := engine.RouterOptions{
		RequestTimeout: cfg.Server.WriteTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if cfg.Auth.Enabled() {
		key, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("load auth public key: %w", err)
		}
		opts.Validator = auth.NewRSAValidator(key,
			auth.WithIssuer(cfg.Auth.Issuer),
			auth.WithAudience(cfg.Auth.Audience),
			auth.WithLeeway(cfg.Auth.Leeway),
		)
	} else {
		logger.Warn("bearer auth disabled, no public key configured")
	}
	if cfg.RateLimit.RPS > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	// 6. HTTP
	gateway := engine.NewGateway(guardrail, estimator, journal, blocker, metrics, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine.NewRouter(gateway, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway started", zap.String("addr", srv.Addr), zap.Strings("rules", guardrail.RuleNames()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadTimeout: cfg.Server.ReadTimeout}
		go func() {
			logger.Info("metrics exporter started", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listen: %w", err)
			}
		}()
	}

	// 7. Graceful shutdown
	select {
	case <-appCtx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("gateway stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
	logger.Info("gateway exited properly")
	return nil
}

func redisRetryPolicy(cfg infra.RedisConfig) engine.RetryPolicy {
	return engine.RetryPolicy{
		Attempts: cfg.InitAttempts,
		Delay:    cfg.InitBackoff,
		MaxDelay: cfg.InitMaxBackoff,
	}
}

func newRedisClient(cfg infra.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
