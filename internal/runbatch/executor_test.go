// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func skipOnWindows(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return ctxlog.New(ctx, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

func debugContext(t *testing.T) context.Context {
	t.Helper()

	return ctxlog.New(testContext(t), slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func localOp(command string) Operation {
	return Operation{Command: command, Target: target.Local("")}
}

func runOne(t *testing.T, ctx context.Context, op Operation, opts ...ExecutorOption) (*Result, error) {
	t.Helper()

	e := NewExecutor(op, opts...)
	require.NoError(t, e.Start(ctx))

	return e.AwaitResult(ctx)
}

func TestExecutor_Success(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	res, err := runOne(t, testContext(t), localOp("exit 0"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, ResultStatusSuccess, res.Status)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "exit 0", res.Label)
	assert.Equal(t, "localhost", res.Target)
}

func TestExecutor_FailureTolerated(t *testing.T) {
	skipOnWindows(t)

	res, err := runOne(t, testContext(t), localOp("exit 3"))
	require.NoError(t, err, "a failure without stop-on-failure is only logged")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, ResultStatusError, res.Status)
}

func TestExecutor_FailureStopOnFailure(t *testing.T) {
	skipOnWindows(t)

	op := localOp("exit 1")
	op.StopOnFailure = true

	res, err := runOne(t, testContext(t), op)

	var failed *FailedError

	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "exit 1", failed.Command)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, "failed: exit 1, rc=1", failed.Error())
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ExitCode)
}

func TestExecutor_ExitOneBothModes(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name          string
		stopOnFailure bool
		wantFailed    bool
	}{
		{name: "tolerant", stopOnFailure: false, wantFailed: false},
		{name: "fail fast", stopOnFailure: true, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := localOp("exit 1")
			op.StopOnFailure = tt.stopOnFailure

			res, err := runOne(t, testContext(t), op)
			require.NotNil(t, res)
			assert.Equal(t, 1, res.ExitCode)

			if !tt.wantFailed {
				require.NoError(t, err)
				return
			}

			var failed *FailedError

			require.ErrorAs(t, err, &failed)
			assert.Equal(t, 1, failed.ExitCode)
		})
	}
}

func TestExecutor_BackgroundChildHoldingStderr(t *testing.T) {
	skipOnWindows(t)

	op := localOp("sleep 5 & exit 0")
	op.StopOnFailure = true

	start := time.Now()
	res, err := runOne(t, testContext(t), op, WithGracePeriod(200*time.Millisecond))
	require.NoError(t, err, "a zero exit is never fatal")
	require.NotNil(t, res)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, ResultStatusSuccess, res.Status)
	require.NoError(t, res.Error)
	assert.False(t, res.TimedOut)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecutor_AwaitWithoutStart(t *testing.T) {
	e := NewExecutor(localOp("true"))

	res, err := e.AwaitResult(testContext(t))
	require.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, res)
}

func TestExecutor_StartTwice(t *testing.T) {
	skipOnWindows(t)

	ctx := testContext(t)
	e := NewExecutor(localOp("true"))

	require.NoError(t, e.Start(ctx))
	require.ErrorIs(t, e.Start(ctx), ErrAlreadyStarted)

	_, err := e.AwaitResult(ctx)
	require.NoError(t, err)
}

func TestExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	op := localOp("sleep 10")
	op.Timeout = 200 * time.Millisecond

	start := time.Now()
	res, err := runOne(t, testContext(t), op)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, ResultStatusTimedOut, res.Status)
	assert.Equal(t, -1, res.ExitCode)
	require.ErrorIs(t, res.Error, ErrTimeoutExceeded)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecutor_TimeoutEscalatesToKill(t *testing.T) {
	skipOnWindows(t)

	op := localOp("trap '' TERM; sleep 10")
	op.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := runOne(t, testContext(t), op, WithGracePeriod(200*time.Millisecond))

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_TimeoutWithStopOnFailure(t *testing.T) {
	skipOnWindows(t)

	op := localOp("sleep 10")
	op.Timeout = 100 * time.Millisecond
	op.StopOnFailure = true

	res, err := runOne(t, testContext(t), op)

	var failed *FailedError

	require.ErrorAs(t, err, &failed)
	assert.Equal(t, -1, failed.ExitCode)
	assert.True(t, res.TimedOut)
}

func TestExecutor_TimeoutMeasuredFromStart(t *testing.T) {
	skipOnWindows(t)

	ctx := testContext(t)
	op := localOp("sleep 10")
	op.Timeout = 300 * time.Millisecond

	e := NewExecutor(op)
	require.NoError(t, e.Start(ctx))

	time.Sleep(250 * time.Millisecond)

	start := time.Now()
	res, err := e.AwaitResult(ctx)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutor_ContextCancelled(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(testContext(t))
	e := NewExecutor(localOp("sleep 10"))
	require.NoError(t, e.Start(ctx))

	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := e.AwaitResult(ctx)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	require.ErrorIs(t, res.Error, ErrCancelled)
}

func TestExecutor_SpawnFailure(t *testing.T) {
	skipOnWindows(t)

	op := Operation{
		Command: "true",
		Target:  target.Local(filepath.Join(t.TempDir(), "does-not-exist")),
	}

	res, err := runOne(t, testContext(t), op)
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, ResultStatusError, res.Status)
	require.ErrorIs(t, res.Error, ErrCouldNotStartProcess)
}

func TestExecutor_RunsInWorkdir(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	op := Operation{Command: "test -f marker || exit 9", Target: target.Local(dir)}

	res, err := runOne(t, testContext(t), op)
	require.NoError(t, err)
	assert.Equal(t, 9, res.ExitCode)

	op.Command = "touch marker"
	_, err = runOne(t, testContext(t), op)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "marker"))
}

func TestExecutor_StdoutOnlyInDebug(t *testing.T) {
	skipOnWindows(t)

	var buf bytes.Buffer

	stubs := gostub.Stub(&stdoutWriter, &buf)
	defer stubs.Reset()

	_, err := runOne(t, testContext(t), localOp("echo quiet"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = runOne(t, debugContext(t), localOp("echo loud"))
	require.NoError(t, err)
	assert.Equal(t, "loud\n", buf.String())
}

func TestExecutor_StderrAlwaysForwarded(t *testing.T) {
	skipOnWindows(t)

	var buf bytes.Buffer

	stubs := gostub.Stub(&stderrWriter, &buf)
	defer stubs.Reset()

	_, err := runOne(t, testContext(t), localOp("echo oops >&2"))
	require.NoError(t, err)
	assert.Equal(t, "oops\n", buf.String())
}

func TestExecutor_AwaitResultIsRepeatable(t *testing.T) {
	skipOnWindows(t)

	ctx := testContext(t)
	e := NewExecutor(localOp("exit 2"))
	require.NoError(t, e.Start(ctx))

	first, err := e.AwaitResult(ctx)
	require.NoError(t, err)

	second, err := e.AwaitResult(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, stateCompleted, e.getState())
}

func TestExecutor_ReportsLifecycle(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	reporter := progress.NewChannelReporter(context.Background(), 10)

	_, err := runOne(t, testContext(t), localOp("exit 4"), WithReporter(reporter), WithKey("k1"))
	require.NoError(t, err)
	reporter.Close()

	var got []progress.EventType

	for ev := range reporter.Events() {
		assert.Equal(t, "k1", ev.Key)
		got = append(got, ev.Type)
	}

	assert.Equal(t, []progress.EventType{progress.EventStarted, progress.EventFailed}, got)
}

func TestExecutor_ReportsStderrLines(t *testing.T) {
	skipOnWindows(t)

	stubs := gostub.Stub(&stderrWriter, io.Discard)
	defer stubs.Reset()

	reporter := progress.NewChannelReporter(context.Background(), 10)

	_, err := runOne(t, testContext(t), localOp("echo building >&2; echo done >&2"), WithReporter(reporter))
	require.NoError(t, err)
	reporter.Close()

	var lines []string

	for ev := range reporter.Events() {
		if ev.Type == progress.EventOutput {
			lines = append(lines, ev.Message)
		}
	}

	assert.Equal(t, []string{"building", "done"}, lines)
}

func TestExecutor_RemoteUnreachable(t *testing.T) {
	skipOnWindows(t)

	if _, err := exec.LookPath("ssh"); err != nil {
		t.Skip("ssh not installed")
	}

	if testing.Short() {
		t.Skip("spawns ssh")
	}

	op := Operation{
		Command: "true",
		Target:  target.Target{Host: "myrepo-test.invalid", User: "nobody", Workdir: "/tmp"},
		Timeout: 20 * time.Second,
	}

	res, err := runOne(t, testContext(t), op)
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestExecutorState_String(t *testing.T) {
	assert.Equal(t, "created", stateCreated.String())
	assert.Equal(t, "running", stateRunning.String())
	assert.Equal(t, "completed", stateCompleted.String())
	assert.Equal(t, "timed-out-terminated", stateTimedOut.String())
}
