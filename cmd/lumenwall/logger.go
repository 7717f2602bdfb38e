package main

import (
	"io"
	"log/slog"

	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/atlanticdynamic/lumenwall/internal/logging"
)

// setupLogger installs the default logger from the config's logging section.
// A non-empty levelOverride wins over the configured level.
func setupLogger(cfg config.LoggingConfig, levelOverride string) (*slog.Logger, io.Closer, error) {
	level := cfg.Level.String()
	if levelOverride != "" {
		level = levelOverride
	}
	handler, closer, err := logging.Setup(cfg.Format.String(), level, cfg.Output)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}
