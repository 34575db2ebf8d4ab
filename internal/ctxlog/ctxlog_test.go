// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}))
}

func TestNew(t *testing.T) {
	t.Run("nil logger uses default", func(t *testing.T) {
		ctx := New(context.Background(), nil)
		assert.Same(t, DefaultLogger, Logger(ctx))
	})

	t.Run("custom logger is stored", func(t *testing.T) {
		l := bufferLogger(&bytes.Buffer{}, slog.LevelInfo)
		ctx := New(context.Background(), l)
		assert.Same(t, l, Logger(ctx))
	})
}

func TestLogger_NoValueReturnsDefault(t *testing.T) {
	assert.Same(t, DefaultLogger, Logger(context.Background()))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer

	ctx := New(context.Background(), bufferLogger(&buf, slog.LevelInfo))
	ctx = With(ctx, "target", "localhost")

	Info(ctx, "hello")
	assert.Contains(t, buf.String(), "target=localhost")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(context.Context, string, ...any)
		level string
	}{
		{name: "debug", fn: Debug, level: "DEBUG"},
		{name: "info", fn: Info, level: "INFO"},
		{name: "warn", fn: Warn, level: "WARN"},
		{name: "error", fn: Error, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			ctx := New(context.Background(), bufferLogger(&buf, slog.LevelDebug))
			tt.fn(ctx, "message", "key", "value")
			assert.Contains(t, buf.String(), "level="+tt.level)
			assert.Contains(t, buf.String(), "key=value")
		})
	}
}

func TestDebugEnabled(t *testing.T) {
	ctx := New(context.Background(), bufferLogger(&bytes.Buffer{}, slog.LevelDebug))
	assert.True(t, DebugEnabled(ctx))

	ctx = New(context.Background(), bufferLogger(&bytes.Buffer{}, slog.LevelWarn))
	assert.False(t, DebugEnabled(ctx))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: " Warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "ERROR", want: slog.LevelError},
		{in: "", want: slog.LevelWarn, wantErr: true},
		{in: "loud", want: slog.LevelWarn, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownLevel)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	name := EnvVarName()
	assert.Contains(t, name, "_LOG_LEVEL")

	t.Setenv(name, "DEBUG")
	assert.Equal(t, slog.LevelDebug, logLevelFromEnv())

	t.Setenv(name, "bogus")
	assert.Equal(t, slog.LevelWarn, logLevelFromEnv())
}

func TestLevelVarControlsDefaultLogger(t *testing.T) {
	prev := LevelVar.Level()
	defer LevelVar.Set(prev)

	LevelVar.Set(slog.LevelError)
	assert.False(t, DefaultLogger.Enabled(context.Background(), slog.LevelWarn))

	LevelVar.Set(slog.LevelDebug)
	assert.True(t, DefaultLogger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, JSONLogger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewForTUI(t *testing.T) {
	prev := LevelVar.Level()
	defer LevelVar.Set(prev)

	LevelVar.Set(slog.LevelInfo)

	var buf bytes.Buffer

	ctx := NewForTUI(context.Background(), &buf)
	Info(ctx, "buffered", "target", "localhost")
	Debug(ctx, "hidden")

	assert.Contains(t, buf.String(), "buffered")
	assert.NotContains(t, buf.String(), "hidden")
	assert.NotContains(t, buf.String(), "\x1b[", "no colour codes")
}
