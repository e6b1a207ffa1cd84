package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/app/migrate"
	httpx "github.com/AhinsaKavindi22/real-time-chat-application/internal/http"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/media"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository/postgres"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/service/auth"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/service/message"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/ws"
	"github.com/AhinsaKavindi22/real-time-chat-application/pkg/config"
	"github.com/AhinsaKavindi22/real-time-chat-application/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("chat-api", cfg.Environment, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	registry := ws.NewRegistry(log)

	uploader, err := media.NewS3Uploader(ctx, cfg)
	if err != nil {
		log.Error("failed to configure media storage", "error", err)
		os.Exit(1)
	}

	authSvc := auth.New(repo, uploader, log, cfg)
	messageSvc := message.New(repo, repo, registry, uploader, log, cfg.MaxImageBytes)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, messageSvc, registry, limiter, cfg.WSSendBuffer, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("chat api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("chat api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
