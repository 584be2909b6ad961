package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/server"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	hub := server.NewHub(logger)
	engine := chat.NewEngine(hub, chat.Options{
		HistoryLimit: cfg.HistoryLimit,
		DedupWindow:  cfg.DedupWindow,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run()
	go engine.Run(ctx)

	gateway := server.NewGateway(hub, engine, cfg, logger)
	httpServer := server.CreateServer(cfg.Addr(), gateway.Routes())

	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("env", cfg.Env).
			Msg("starting GoRelay server")

		if err := server.StartServer(httpServer); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown error")
	}
	cancel()

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
