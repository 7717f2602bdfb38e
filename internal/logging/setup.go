// Package logging builds the slog handlers used across the process.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atlanticdynamic/lumenwall/internal/logging/writers"
	"github.com/charmbracelet/log"
)

// Format names accepted by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// level maps a level name to a slog level. "trace" is debug with caller
// reporting; unknown names fall back to info.
func level(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "trace":
		return slog.LevelDebug, true
	case "debug":
		return slog.LevelDebug, false
	case "warn", "warning":
		return slog.LevelWarn, false
	case "error":
		return slog.LevelError, false
	default:
		return slog.LevelInfo, false
	}
}

// SetupHandlerText configures a charmbracelet text handler. Timestamps are
// shown from debug level down.
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}
	lvl, trace := level(logLevel)
	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: lvl <= slog.LevelDebug,
		ReportCaller:    trace,
		Level:           log.Level(lvl),
	})
}

// SetupHandlerJSON configures a JSON slog handler with the provided writer and log level
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stdout
	}
	lvl, trace := level(logLevel)
	return slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: trace,
	})
}

// Setup builds a handler for format and level writing to output (see
// writers.Open). The returned closer releases the output.
func Setup(format, logLevel, output string) (slog.Handler, io.Closer, error) {
	w, err := writers.Open(output)
	if err != nil {
		return nil, nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatText:
		return SetupHandlerText(logLevel, w), w, nil
	case FormatJSON:
		return SetupHandlerJSON(logLevel, w), w, nil
	default:
		_ = w.Close()
		return nil, nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// SetupLogger configures the default logger based on provided log level
func SetupLogger(logLevel string) {
	slog.SetDefault(slog.New(SetupHandlerText(logLevel, nil)))
}
