package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"zelador/internal/app"
	"zelador/internal/infra/config"
	"zelador/internal/infra/logger"
)

func main() {
	// Systemd units carry their own environment; .env is for direct runs.
	if os.Getenv("INVOCATION_ID") == "" {
		_ = godotenv.Load()
	}

	cfg := config.Load()
	log := logger.Wrap(logger.New(cfg.Process.LogLevel))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(context.Background(), cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
