// Package cmd implements the alertwall subcommands. main.go parses the
// top-level flags and delegates to the RunXxx functions here.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"grimm.is/alertwall/internal/config"
	"grimm.is/alertwall/internal/i18n"
	"grimm.is/alertwall/internal/logging"
)

// Printer is the locale-aware printer for CLI output.
var Printer = i18n.NewCLIPrinter()

// LoadDotEnv loads KEY=value pairs from path into the environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// loadConfig loads the configuration and installs the process logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr, JSON: cfg.LogJSON})
	logging.SetDefault(logger)
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
