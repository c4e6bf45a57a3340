// Command cognetivy serves a Cognetivy workspace over MCP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/meitarbe/cognetivy"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	loadDotEnv()

	// Logs go to stderr: stdout carries the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("COGNETIVY_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := cognetivy.New(
		cognetivy.WithVersion(version),
		cognetivy.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// loadDotEnv reads .env from the working directory if present. Variables
// already set in the environment win. Most installs won't have one.
func loadDotEnv() {
	_ = godotenv.Load()
}

// logLevel parses a slog level name, defaulting to info.
func logLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
