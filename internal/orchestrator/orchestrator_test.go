// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func sleepAction(delays map[string]time.Duration) Action[string] {
	return func(ctx context.Context, tgt string, _ []string) (runbatch.Results, error) {
		time.Sleep(delays[tgt])
		return runbatch.Results{{Label: tgt, Status: runbatch.ResultStatusSuccess}}, nil
	}
}

func TestRunOnAll_StragglerJoinedLate(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := ctxlog.New(context.Background(), ctxlog.DefaultLogger)
	reporter := progress.NewChannelReporter(context.Background(), 10)

	o := &Orchestrator{
		SettleDelay: 50 * time.Millisecond,
		Deadline:    200 * time.Millisecond,
		Reporter:    reporter,
	}
	targets := []string{"a", "slow", "c"}
	delays := map[string]time.Duration{"a": 10 * time.Millisecond, "slow": 800 * time.Millisecond, "c": 20 * time.Millisecond}

	start := time.Now()
	out, err := RunOnAll(ctx, o, sleepAction(delays), targets)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond, "straggler is joined without bound")

	require.Len(t, out, 3)

	for i, tr := range out {
		assert.Equal(t, targets[i], tr.Target)
		require.Len(t, tr.Results, 1)
		assert.Equal(t, targets[i], tr.Results[0].Label)
	}

	assert.False(t, out[0].Late)
	assert.True(t, out[1].Late)
	assert.False(t, out[2].Late, "targets already done when the deadline passed are not late")
	assert.True(t, out[1].FinishedAt.After(out[0].FinishedAt))
	assert.True(t, out[1].FinishedAt.After(out[2].FinishedAt))

	reporter.Close()

	var late []string

	for ev := range reporter.Events() {
		if ev.Type == progress.EventLate {
			late = append(late, ev.Key)
		}
	}

	assert.Equal(t, []string{"slow"}, late)
}

func TestRunOnAll_SettleEndsEarly(t *testing.T) {
	defer goleak.VerifyNone(t)

	start := time.Now()
	out, err := RunOnAll(context.Background(), &Orchestrator{}, sleepAction(nil), []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Less(t, time.Since(start), time.Second, "default settle delay ends once every target is done")
}

func TestRunOnAll_ActionErrorsRecorded(t *testing.T) {
	boom := errors.New("boom")
	var action Action[int] = func(_ context.Context, tgt int, _ []string) (runbatch.Results, error) {
		if tgt%2 == 1 {
			return nil, fmt.Errorf("target %d: %w", tgt, boom)
		}

		return runbatch.Results{}, nil
	}

	out, err := RunOnAll(context.Background(), &Orchestrator{SettleDelay: -1}, action, []int{0, 1, 2, 3})
	require.NoError(t, err)
	require.Len(t, out, 4)

	for i, tr := range out {
		if i%2 == 1 {
			require.ErrorIs(t, tr.Err, boom)
		} else {
			require.NoError(t, tr.Err)
		}
	}
}

func TestRunOnAll_PrepareRunsOnceWithPayload(t *testing.T) {
	var prepared, ran atomic.Int32

	srpms := []string{"foo-1.0-1.src.rpm"}

	o := &Orchestrator{
		SettleDelay: -1,
		Prepare: func(_ context.Context, payload []string) error {
			prepared.Add(1)
			assert.Equal(t, srpms, payload)

			return nil
		},
	}
	var action Action[string] = func(_ context.Context, _ string, payload []string) (runbatch.Results, error) {
		ran.Add(1)
		assert.Equal(t, srpms, payload)

		return nil, nil
	}

	_, err := RunOnAll(context.Background(), o, action, []string{"a", "b", "c"}, srpms...)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prepared.Load())
	assert.Equal(t, int32(3), ran.Load())

	var noPayload Action[string] = func(_ context.Context, _ string, payload []string) (runbatch.Results, error) {
		assert.Empty(t, payload)

		return nil, nil
	}

	_, err = RunOnAll(context.Background(), o, noPayload, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), prepared.Load(), "prepare is skipped without a payload")
}

func TestRunOnAll_PrepareFailureStartsNothing(t *testing.T) {
	var ran atomic.Int32

	o := &Orchestrator{
		Prepare: func(context.Context, []string) error { return errors.New("rpm: not found") },
	}
	var action Action[string] = func(context.Context, string, []string) (runbatch.Results, error) {
		ran.Add(1)
		return nil, nil
	}

	out, err := RunOnAll(context.Background(), o, action, []string{"a"}, "missing.src.rpm")
	require.ErrorIs(t, err, ErrPrepareFailed)
	assert.Nil(t, out)
	assert.Equal(t, int32(0), ran.Load())
}

func TestRunOnAll_WithBatchRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	defer goleak.VerifyNone(t)

	var action Action[target.Target] = func(ctx context.Context, tgt target.Target, _ []string) (runbatch.Results, error) {
		ops := []runbatch.Operation{
			{Command: "test -d .", Target: tgt, Timeout: 5 * time.Second},
			{Command: "exit 3", Target: tgt, Timeout: 5 * time.Second},
		}

		return runbatch.Run(ctx, ops, runbatch.WaitMin)
	}

	targets := []target.Target{target.Local(t.TempDir()), target.Local(t.TempDir())}

	out, err := RunOnAll(context.Background(), &Orchestrator{Deadline: 10 * time.Second}, action, targets)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for _, tr := range out {
		require.NoError(t, tr.Err)
		assert.Equal(t, []int{0, 3}, tr.Results.ExitCodes())
	}
}

func TestOrchestrator_Defaults(t *testing.T) {
	o := &Orchestrator{}
	assert.Equal(t, DefaultDeadline, o.deadline())
	assert.Equal(t, DefaultSettleDelay, o.settleDelay())

	o = &Orchestrator{SettleDelay: -time.Second, Deadline: time.Minute}
	assert.Equal(t, time.Minute, o.deadline())
	assert.Equal(t, time.Duration(0), o.settleDelay())
}
