// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for thinkbox components.
//
// The CLI logs human-readable text to stderr (Unix convention: stdout
// carries brainstorm output, stderr carries diagnostics). The server
// logs JSON to stdout for collection. Both are plain slog underneath.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("starting brainstorm", "session_id", sessionID)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged:
//
//	// BAD: logs sensitive data
//	logger.Info("auth", "token", token)
//
//	// GOOD: log metadata only
//	logger.Info("auth", "token_present", token != "")
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted. Defaults to info.
	Level slog.Level

	// Format selects text or JSON output. Defaults to text.
	Format Format

	// Output receives log lines. Defaults to stderr.
	Output io.Writer

	// Service is attached to every record when non-empty.
	Service string
}

// ParseLevel maps a level name to a slog.Level. Unknown names fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// Default returns a text logger on stderr at the level named by the
// THINKBOX_LOG_LEVEL environment variable (info when unset).
func Default() *slog.Logger {
	return New(Config{Level: ParseLevel(os.Getenv("THINKBOX_LOG_LEVEL"))})
}
