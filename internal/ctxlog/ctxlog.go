// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type loggerKey struct{}

// ErrUnknownLevel is returned by ParseLevel for an unrecognised level name.
var ErrUnknownLevel = errors.New("unknown log level")

// LevelVar holds the level shared by every logger created by this package.
var LevelVar = &slog.LevelVar{}

// DefaultLogger is a pretty console logger that is used if no logger is provided.
var DefaultLogger = slog.New(NewPrettyHandler(&slog.HandlerOptions{
	Level: LevelVar,
},
	WithAutoColour(),
	WithDestinationWriter(os.Stderr),
))

// JSONLogger writes one JSON object per record to stderr.
var JSONLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LevelVar,
}))

func init() {
	LevelVar.Set(logLevelFromEnv())
}

// New creates a new context with the given logger.
// If logger is nil, it uses the default logger.
func New(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = DefaultLogger
	}

	return context.WithValue(ctx, loggerKey{}, logger)
}

// NewForTUI returns a context whose logger writes to w without colour, so that
// log records do not disturb a full screen interface. The caller flushes w
// once the interface has exited.
func NewForTUI(ctx context.Context, w io.Writer) context.Context {
	return New(ctx, slog.New(NewPrettyHandler(&slog.HandlerOptions{
		Level: LevelVar,
	}, WithDestinationWriter(w))))
}

// With returns a context whose logger carries the supplied attributes.
func With(ctx context.Context, args ...any) context.Context {
	return New(ctx, Logger(ctx).With(args...))
}

// Logger returns the logger from the context, or the default logger if not found.
func Logger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok || logger == nil {
		return DefaultLogger
	}

	return logger
}

// DebugEnabled reports whether the context logger would emit debug records.
func DebugEnabled(ctx context.Context) bool {
	return Logger(ctx).Enabled(ctx, slog.LevelDebug)
}

// Info logs an info message with the given context.
func Info(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Info(msg, args...)
}

// Debug logs a debug message with the given context.
func Debug(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Debug(msg, args...)
}

// Warn logs a warning message with the given context.
func Warn(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Warn(msg, args...)
}

// Error logs an error message with the given context.
func Error(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Error(msg, args...)
}

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}

	return slog.LevelWarn, errors.Join(ErrUnknownLevel, errors.New(s))
}

// EnvVarName returns the name of the environment variable that sets the log level,
// derived from the executable name, e.g. MYREPO_LOG_LEVEL.
func EnvVarName() string {
	exec, _ := os.Executable()
	exec = filepath.Base(exec)

	if ext := filepath.Ext(exec); ext == ".exe" {
		exec = exec[:len(exec)-len(ext)]
	}

	return strings.ToUpper(exec) + "_LOG_LEVEL"
}

func logLevelFromEnv() slog.Level {
	lvl, err := ParseLevel(os.Getenv(EnvVarName()))
	if err != nil {
		return slog.LevelWarn
	}

	return lvl
}
