// Package main запускает HTTP-сервер сервиса доставки в кондоминиумах.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/condo-delivery/internal/config"
	"github.com/mmeshcher/condo-delivery/internal/handler"
	"github.com/mmeshcher/condo-delivery/internal/metrics"
	"github.com/mmeshcher/condo-delivery/internal/middleware"
	"github.com/mmeshcher/condo-delivery/internal/repository"
	"github.com/mmeshcher/condo-delivery/internal/service"
)

const orderLimitWindow = time.Hour

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheus(reg, "")

	svc := service.NewService(repo, logger, service.Options{
		Location:    loc,
		Seed:        cfg.AssignSeed,
		ByProximity: cfg.AssignByProximity,
		Metrics:     collector,
	})
	defer svc.Close()

	var limiter *middleware.RateLimiter
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis is unreachable, order rate limit will be skipped until it recovers", "addr", cfg.RedisAddress, "error", err.Error())
		}
		cancel()

		counter := middleware.NewRedisCounter(rdb, "condo-delivery:ratelimit:")
		limiter = middleware.NewRateLimiter(counter, cfg.OrderCreateLimit, orderLimitWindow, logger)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, auth cookies will not survive a restart")
	}

	h := handler.NewHandler(svc, logger, authMiddleware, limiter, collector.Handler())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновый подбор курьеров для заказов, оставшихся без назначения
	g.Go(func() error {
		svc.RunAssignmentSweep(ctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting condo delivery server", "addr", cfg.RunAddress, "time_zone", loc.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
