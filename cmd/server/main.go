package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/ehr-api/internal/api"
	"github.com/clinicore/ehr-api/internal/core/ports"
	mongodb "github.com/clinicore/ehr-api/internal/infrastructure/db/mongo"
	redisdb "github.com/clinicore/ehr-api/internal/infrastructure/db/redis"
	"github.com/clinicore/ehr-api/internal/infrastructure/notify"
	"github.com/clinicore/ehr-api/internal/infrastructure/queue"
	"github.com/clinicore/ehr-api/internal/pkg/config"
	"github.com/clinicore/ehr-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger is not up yet.
		println("fatal:", err.Error())
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}()

	if err := mongodb.NewUserRepository(db).EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("user indexes failed")
	}
	if err := mongodb.NewRegistrationRepository(db).EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("registration indexes failed")
	}

	// Redis only backs the attempt limiter, which fails open; a missing
	// Redis is a warning, not a startup failure.
	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, attempt limiting disabled")
		rdb = nil
	}

	var notifier ports.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.LinkBaseURL)
	} else {
		log.Warn().Msg("no SMTP host configured, notifications go to the log")
		notifier = notify.NewLogNotifier(log)
	}

	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, cfg.Notify.MaxAttempts, notifier, log)
	dispatcher.Start(ctx)

	e := api.NewRouter(db, rdb, dispatcher, cfg, log)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
