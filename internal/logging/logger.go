// Package logging configures runtime JSONL logging output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LevelEnv overrides the default info level (debug, info, warn, error).
const LevelEnv = "VIVA_LOG_LEVEL"

// Options selects where one binary logs.
type Options struct {
	// Name is the log file stem under state/viva, e.g. "log" or "broker".
	Name string
	// Writer, when set, replaces the state file (the broker logs to stdout).
	Writer io.Writer
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger rooted at the resolved state path, or on opts.Writer.
func New(opts Options) (Runtime, error) {
	level, err := parseLevel(os.Getenv(LevelEnv))
	if err != nil {
		return Runtime{}, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.Writer != nil {
		return Runtime{Logger: slog.New(slog.NewJSONHandler(opts.Writer, handlerOpts))}, nil
	}

	path, err := resolveLogPath(opts.Name)
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	logger := slog.New(slog.NewJSONHandler(f, handlerOpts))
	return Runtime{Logger: logger, Path: path, closer: f}, nil
}

func parseLevel(raw string) (slog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid %s %q: %w", LevelEnv, raw, err)
	}
	return level, nil
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "log"
	}
	file := name + ".jsonl"

	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "viva", file), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "viva", file), nil
}
