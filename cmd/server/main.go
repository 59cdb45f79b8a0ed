// Command server runs the reminder backend: the HTTP API for user/event
// CRUD and the scheduling engine (due-index refresh + dispatch scanner).
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/remindery/go-reminder-backend/internal/config"
	httpapi "github.com/remindery/go-reminder-backend/internal/http"
	"github.com/remindery/go-reminder-backend/internal/observability"
	"github.com/remindery/go-reminder-backend/internal/repo"
	"github.com/remindery/go-reminder-backend/internal/scheduler"
	"github.com/remindery/go-reminder-backend/internal/services"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("cannot open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	index := services.NewDueIndexService(
		db,
		log.With().Str("component", "due_index").Logger(),
		cfg.Scheduler.Horizon,
		cfg.Scheduler.Tolerance,
		cfg.Scheduler.RefreshInterval,
	)
	dispatch := services.NewDispatchService(
		db,
		index,
		services.LogSender{Log: log.With().Str("component", "sender").Logger()},
		log.With().Str("component", "dispatch").Logger(),
		cfg.Scheduler.Tolerance,
		cfg.Scheduler.MaxAttempts,
		cfg.Scheduler.PendingGrace,
		cfg.Scheduler.Workers,
	)
	users := services.NewUserService(db)
	events := services.NewEventService(db, index)

	sched := scheduler.New(dispatch, index,
		log.With().Str("component", "scheduler").Logger(),
		cfg.Scheduler.ScanInterval, cfg.Scheduler.RefreshInterval)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, users, events, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	// Stop cadences first: in-flight claimed deliveries complete, no new
	// ticks start.
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
