// Package main is the entry point for the Accomplo API server.
//
// main stays minimal: load configuration, build the logger, hand both to
// internal/server and block until shutdown. All wiring lives in
// internal/server so tests can build the same stack without a process.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/accomplo/internal/config"
	"github.com/sakif/accomplo/internal/server"
)

func main() {
	// Bootstrap logger until the configured level is known.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(".")
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate already rejected unknown levels.
	level, _ := cfg.LogLevel()
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Connecting to Postgres/Redis and running migrations must not hang
	// startup forever.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
