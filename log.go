package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/config"
)

func logFilePath() (string, error) {
	dir, err := config.Scope().CacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog sends the global logger to the log file so that it does not
// draw over the player. Commands without a TUI switch it back to stderr.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	path, err := logFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

// logToStderr is used by commands that print rather than draw.
func logToStderr() {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
}

func applyLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("invalid log level", "level", level, "err", err)
		return
	}
	log.SetLevel(lvl)
}
