// Command server runs the chatroom backend: a multi-room conversation and
// cost-accounting service over a SQLite store, fronted by a Gin HTTP API.
//
// @title        Chatroom Backend API
// @version      1.0
// @description  Multi-room chat backend with per-exchange token pricing and durable cost accounting.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/seohwan-dev/go-chatroom-backend/docs"
	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/completion"
	"github.com/seohwan-dev/go-chatroom-backend/internal/config"
	httpapi "github.com/seohwan-dev/go-chatroom-backend/internal/http"
	"github.com/seohwan-dev/go-chatroom-backend/internal/observability"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
	"github.com/seohwan-dev/go-chatroom-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	sessions := chat.NewManager(httpapi.NewGateway(db), log.Logger)
	ctrl := &chat.Controller{
		Sessions:           sessions,
		Client:             completion.New(cfg.Completion.BaseURL, cfg.Completion.Timeout),
		Timeout:            cfg.Completion.Timeout,
		MaxPromptRunes:     cfg.MaxPromptRunes,
		DefaultModel:       cfg.Completion.Model,
		DefaultTemperature: cfg.Completion.Temperature,
		DefaultMaxTokens:   cfg.Completion.MaxTokens,
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, sessions, ctrl, cfg)

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
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
