// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/lastline"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
)

// DefaultGracePeriod is how long a terminated process has to exit before it is killed.
const DefaultGracePeriod = 3 * time.Second

var (
	// ErrNotStarted is returned by AwaitResult when Start was never called.
	ErrNotStarted = errors.New("operation not started")
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("operation already started")
	// ErrCouldNotStartProcess is recorded on the result when the process could not be spawned.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrTimeoutExceeded is recorded on the result when the operation timeout expired.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrCancelled is recorded on the result when the caller's context ended first.
	ErrCancelled = errors.New("operation cancelled")
)

// These are variables so tests can capture child output.
var (
	stdoutWriter io.Writer = os.Stdout
	stderrWriter io.Writer = os.Stderr
)

// FailedError is returned by AwaitResult for a non-zero exit of an operation
// that has StopOnFailure set.
type FailedError struct {
	Command  string
	ExitCode int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("failed: %s, rc=%d", e.Command, e.ExitCode)
}

type executorState int32

const (
	stateCreated executorState = iota
	stateRunning
	stateCompleted
	stateTimedOut
)

func (s executorState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateTimedOut:
		return "timed-out-terminated"
	default:
		return "unknown"
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithReporter sends lifecycle events for the operation to r.
func WithReporter(r progress.Reporter) ExecutorOption {
	return func(e *Executor) {
		e.reporter = progress.OrNull(r)
	}
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on timeout.
func WithGracePeriod(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithKey sets the key used on progress events.
func WithKey(key string) ExecutorOption {
	return func(e *Executor) {
		e.key = key
	}
}

// Executor runs a single Operation as a child process.
// It moves from created to running on Start, and from running to exactly one
// of completed or timed-out-terminated in AwaitResult.
type Executor struct {
	op       Operation
	key      string
	reporter progress.Reporter
	grace    time.Duration

	state atomic.Int32

	cmd      *exec.Cmd
	started  time.Time
	finished time.Time
	spawnErr error
	waitErr  error
	cause    error
	done     chan struct{} // closed once the process is reaped or failed to spawn

	awaitMu sync.Mutex
	result  *Result
	failure error
}

// NewExecutor creates an executor for op. Nothing runs until Start.
func NewExecutor(op Operation, opts ...ExecutorOption) *Executor {
	e := &Executor{
		op:       op,
		key:      op.Name(),
		reporter: progress.NullReporter{},
		grace:    DefaultGracePeriod,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Operation returns the operation this executor runs.
func (e *Executor) Operation() Operation {
	return e.op
}

// Done is closed when the process has exited and been reaped, or failed to spawn.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) getState() executorState {
	return executorState(e.state.Load())
}

func (e *Executor) transition(from, to executorState) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

func (e *Executor) logger(ctx context.Context) context.Context {
	return ctxlog.With(ctx,
		"label", e.op.Name(),
		"target", e.op.Target.String(),
	)
}

// Start spawns the process and returns without waiting for it.
// A spawn failure is not returned: it is recorded and surfaces from AwaitResult
// as a result with exit code -1.
func (e *Executor) Start(ctx context.Context) error {
	if !e.transition(stateCreated, stateRunning) {
		return ErrAlreadyStarted
	}

	ctx = e.logger(ctx)
	inv := e.op.Target.Adapt(ctx, e.op.Command)

	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...) //nolint:gosec
	cmd.Dir = inv.Dir
	cmd.Stderr = lastline.New(stderrWriter, func(line string) {
		e.report(progress.EventOutput, line, 0, nil)
	})
	cmd.WaitDelay = e.grace

	if ctxlog.DebugEnabled(ctx) {
		cmd.Stdout = stdoutWriter
	}

	setProcessGroup(cmd)

	e.cmd = cmd
	e.started = time.Now()

	ctxlog.Debug(ctx, "starting process", "argv", inv.Argv, "dir", inv.Dir, "timeout", e.op.Timeout)

	if err := cmd.Start(); err != nil {
		e.spawnErr = errors.Join(ErrCouldNotStartProcess, err)
		e.finished = time.Now()
		close(e.done)

		ctxlog.Error(ctx, "could not start process", "error", err)

		return nil
	}

	ctxlog.Debug(ctx, "process started", "pid", cmd.Process.Pid)
	e.report(progress.EventStarted, "running", 0, nil)

	go func() {
		e.waitErr = cmd.Wait()
		e.finished = time.Now()
		close(e.done)
	}()

	return nil
}

// AwaitResult blocks until the process exits, the operation timeout measured
// from Start expires, or ctx is done. In the latter two cases the process is
// terminated and then reaped without bound, and the result is marked timed out.
//
// A non-zero exit code returns a *FailedError alongside the result when the
// operation has StopOnFailure set and is logged as a warning otherwise.
// Repeated calls return the same result.
func (e *Executor) AwaitResult(ctx context.Context) (*Result, error) {
	ctx = e.logger(ctx)

	if e.getState() == stateCreated {
		ctxlog.Warn(ctx, "result requested for an operation that was never started")
		return nil, ErrNotStarted
	}

	e.awaitMu.Lock()
	defer e.awaitMu.Unlock()

	if e.result != nil {
		return e.result, e.failure
	}

	var deadline <-chan time.Time

	if e.op.HasTimeout() {
		timer := time.NewTimer(max(e.op.Timeout-time.Since(e.started), 0))
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case <-e.done:
		e.transition(stateRunning, stateCompleted)
	case <-deadline:
		e.terminate(ctx, ErrTimeoutExceeded)
	case <-ctx.Done():
		e.terminate(ctx, errors.Join(ErrCancelled, context.Cause(ctx)))
	}

	e.result = e.buildResult(ctx)
	ctxlog.Debug(ctx, "operation finished",
		"state", e.getState().String(),
		"exitCode", e.result.ExitCode,
		"duration", e.result.Duration.String(),
	)

	e.failure = e.applyFailurePolicy(ctx, e.result)
	e.reportResult(e.result)

	return e.result, e.failure
}

// terminate moves the executor to timed-out-terminated, signals the process
// and waits for it to be reaped.
func (e *Executor) terminate(ctx context.Context, cause error) {
	select {
	case <-e.done:
		e.transition(stateRunning, stateCompleted)
		return
	default:
	}

	if !e.transition(stateRunning, stateTimedOut) {
		<-e.done
		return
	}

	e.cause = cause
	pid := e.cmd.Process.Pid

	ctxlog.Warn(ctx, "terminating process", "pid", pid, "reason", cause)

	if err := terminateProcess(e.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		ctxlog.Debug(ctx, "could not signal process", "pid", pid, "error", err)
	}

	grace := time.NewTimer(e.grace)
	defer grace.Stop()

	select {
	case <-e.done:
		return
	case <-grace.C:
	}

	ctxlog.Warn(ctx, "process did not exit after terminate, killing", "pid", pid)

	if err := killProcess(e.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		ctxlog.Error(ctx, "process kill error", "pid", pid, "error", err)
	}

	<-e.done
}

func (e *Executor) buildResult(ctx context.Context) *Result {
	res := &Result{
		Label:    e.op.Name(),
		Command:  e.op.Command,
		Target:   e.op.Target.String(),
		Started:  e.started,
		Duration: e.finished.Sub(e.started),
		Status:   ResultStatusSuccess,
	}

	switch {
	case e.spawnErr != nil:
		res.ExitCode = -1
		res.Error = e.spawnErr
	default:
		res.ExitCode = e.cmd.ProcessState.ExitCode()

		var exitErr *exec.ExitError

		switch {
		case e.waitErr == nil, errors.As(e.waitErr, &exitErr):
		case errors.Is(e.waitErr, exec.ErrWaitDelay):
			// A background child still holds stderr open. The exit status is valid.
			ctxlog.Debug(ctx, "output still open after process exit", "error", e.waitErr)
		default:
			res.Error = e.waitErr
		}
	}

	if e.getState() == stateTimedOut {
		res.TimedOut = true
		res.Error = errors.Join(res.Error, e.cause)

		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
	}

	switch {
	case res.TimedOut:
		res.Status = ResultStatusTimedOut
	case res.ExitCode != 0:
		res.Status = ResultStatusError
	}

	return res
}

func (e *Executor) applyFailurePolicy(ctx context.Context, res *Result) error {
	if res.ExitCode == 0 {
		if res.Error != nil {
			ctxlog.Warn(ctx, "operation exited cleanly with an error", "command", e.op.Command, "error", res.Error)
		}

		return nil
	}

	if e.op.StopOnFailure {
		return &FailedError{Command: e.op.Command, ExitCode: res.ExitCode}
	}

	ctxlog.Warn(ctx, "operation failed", "command", e.op.Command, "exitCode", res.ExitCode, "error", res.Error)

	return nil
}

func (e *Executor) report(t progress.EventType, msg string, rc int, err error) {
	e.reporter.Report(progress.Event{
		Key:       e.key,
		Label:     e.op.Name(),
		Target:    e.op.Target.String(),
		Type:      t,
		Message:   msg,
		Timestamp: time.Now(),
		ExitCode:  rc,
		Err:       err,
	})
}

func (e *Executor) reportResult(res *Result) {
	switch res.Status {
	case ResultStatusSuccess:
		e.report(progress.EventCompleted, "completed", res.ExitCode, nil)
	case ResultStatusTimedOut:
		e.report(progress.EventTimedOut, "terminated", res.ExitCode, res.Error)
	default:
		e.report(progress.EventFailed, fmt.Sprintf("exit code %d", res.ExitCode), res.ExitCode, res.Error)
	}
}
