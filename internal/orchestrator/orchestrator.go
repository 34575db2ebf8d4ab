// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package orchestrator runs one action once per target, concurrently.
//
// RunOnAll starts a goroutine per target, sleeps for a settle delay, then joins
// each goroutine in submission order against a deadline. Targets that miss the
// deadline are logged and joined again without bound, so RunOnAll always
// returns one result per target.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
)

const (
	// DefaultSettleDelay is the pause between fan-out and the first join.
	DefaultSettleDelay = 5 * time.Second
	// DefaultDeadline bounds the first join of every target.
	DefaultDeadline = 600 * time.Second
)

// ErrPrepareFailed wraps an error returned by the prepare hook.
var ErrPrepareFailed = errors.New("prepare failed")

// Action is the per-target work. It usually builds operations for the target
// and runs them with a runbatch.BatchRunner.
type Action[T any] func(ctx context.Context, target T, payload []string) (runbatch.Results, error)

// PrepareFunc runs once before fan-out with the payload, for example to warm a memo table.
type PrepareFunc func(ctx context.Context, payload []string) error

// Orchestrator holds the timing of a fan-out. The zero value uses the defaults.
type Orchestrator struct {
	SettleDelay time.Duration     // Pause after fan-out, ends early when every target is done. Negative disables it.
	Deadline    time.Duration     // Measured from the end of the settle delay.
	Prepare     PrepareFunc       // Optional, called only when a payload is given.
	Reporter    progress.Reporter // Optional, receives EventLate for stragglers.
}

// TargetResult is the outcome of running the action on one target.
type TargetResult[T any] struct {
	Target     T
	Results    runbatch.Results
	Err        error
	Late       bool      // The target missed the deadline and was joined without bound.
	FinishedAt time.Time // When the action returned.
}

type task[T any] struct {
	target T
	done   chan struct{}
	res    TargetResult[T]
}

// RunOnAll runs action once per target and returns the outcomes in target order.
// The only error returned directly is a prepare failure, in which case nothing
// is started. Action errors are recorded per target.
func RunOnAll[T any](
	ctx context.Context,
	o *Orchestrator,
	action Action[T],
	targets []T,
	payload ...string,
) ([]TargetResult[T], error) {
	if o == nil {
		o = &Orchestrator{}
	}

	ctx = ctxlog.With(ctx, "run", uuid.NewString())

	if len(payload) > 0 && o.Prepare != nil {
		if err := o.Prepare(ctx, payload); err != nil {
			return nil, errors.Join(ErrPrepareFailed, err)
		}
	}

	tasks := make([]*task[T], len(targets))

	for i, tgt := range targets {
		tk := &task[T]{target: tgt, done: make(chan struct{})}
		tasks[i] = tk

		go func() {
			defer close(tk.done)

			results, err := action(ctx, tk.target, payload)
			tk.res = TargetResult[T]{
				Target:     tk.target,
				Results:    results,
				Err:        err,
				FinishedAt: time.Now(),
			}
		}()
	}

	ctxlog.Debug(ctx, "dispatched action", "targets", len(tasks))

	settle(ctx, o.settleDelay(), tasks)

	deadline := time.NewTimer(o.deadline())
	defer deadline.Stop()

	expired := false
	out := make([]TargetResult[T], len(tasks))

	for i, tk := range tasks {
		late := false

		if !expired {
			select {
			case <-tk.done:
			case <-deadline.C:
				expired = true
			}
		}

		if expired {
			select {
			case <-tk.done:
			default:
				late = true

				ctxlog.Warn(ctx, "target missed deadline, waiting for it to finish", "target", targetKey(tk.target), "deadline", o.deadline().String())
				progress.OrNull(o.Reporter).Report(progress.Event{
					Key:       targetKey(tk.target),
					Type:      progress.EventLate,
					Message:   "missed deadline",
					Timestamp: time.Now(),
				})

				<-tk.done
			}
		}

		out[i] = tk.res
		out[i].Late = late
	}

	return out, nil
}

func (o *Orchestrator) deadline() time.Duration {
	if o.Deadline > 0 {
		return o.Deadline
	}

	return DefaultDeadline
}

func (o *Orchestrator) settleDelay() time.Duration {
	if o.SettleDelay < 0 {
		return 0
	}

	if o.SettleDelay == 0 {
		return DefaultSettleDelay
	}

	return o.SettleDelay
}

// settle sleeps for delay, returning early once every task is done or ctx ends.
func settle[T any](ctx context.Context, delay time.Duration, tasks []*task[T]) {
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for _, tk := range tasks {
		select {
		case <-tk.done:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func targetKey(target any) string {
	return fmt.Sprint(target)
}
