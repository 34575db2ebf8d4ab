// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
)

// BatchRunner starts a batch of operations concurrently and collects their results.
// There is no concurrency cap: every operation is spawned immediately.
// A BatchRunner holds no per-batch state and may be reused.
type BatchRunner struct {
	Reporter    progress.Reporter // Optional receiver of lifecycle events.
	GracePeriod time.Duration     // SIGTERM to SIGKILL delay, DefaultGracePeriod when zero.
}

// Run executes ops and returns one result per operation in submission order.
//
// The wait policy is resolved before anything is spawned; an invalid policy or
// operation returns an error and no results. After every operation is started
// the runner waits for the resolved duration, or until every process has exited
// if that happens first, then collects each result with AwaitResult.
//
// Failures of operations with StopOnFailure set are aggregated into the
// returned error, the results slice is always complete.
func (b *BatchRunner) Run(ctx context.Context, ops []Operation, policy WaitPolicy) (Results, error) {
	ctx = ctxlog.With(ctx, "batch", uuid.NewString())

	var invalid *multierror.Error

	for _, op := range ops {
		if err := op.Validate(); err != nil {
			invalid = multierror.Append(invalid, err)
		}
	}

	if err := invalid.ErrorOrNil(); err != nil {
		return nil, err
	}

	wait, err := policy.Resolve(ops)
	if err != nil {
		return nil, err
	}

	ctxlog.Debug(ctx, "starting batch", "operations", len(ops), "policy", policy.String(), "wait", wait.String())

	executors := make([]*Executor, len(ops))

	for i, op := range ops {
		executors[i] = NewExecutor(op,
			WithReporter(b.Reporter),
			WithGracePeriod(b.GracePeriod),
			WithKey(fmt.Sprintf("%d:%s", i, op.Name())),
		)

		if err := executors[i].Start(ctx); err != nil {
			return nil, err
		}
	}

	if wait > 0 {
		settle(ctx, wait, executors)
	}

	results := make(Results, len(executors))

	var failed *multierror.Error

	for i, e := range executors {
		res, err := e.AwaitResult(ctx)
		results[i] = res

		if err != nil {
			failed = multierror.Append(failed, err)
		}
	}

	return results, failed.ErrorOrNil()
}

// settle blocks for wait, returning early once every executor is done or ctx ends.
func settle(ctx context.Context, wait time.Duration, executors []*Executor) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-allDone(executors):
		ctxlog.Debug(ctx, "every operation finished before the wait elapsed")
	}
}

// allDone returns a channel closed once every executor's process has been reaped.
func allDone(executors []*Executor) <-chan struct{} {
	ch := make(chan struct{})

	var wg sync.WaitGroup

	for _, e := range executors {
		wg.Add(1)

		go func(e *Executor) {
			defer wg.Done()
			<-e.Done()
		}(e)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	return ch
}

// Run is a convenience wrapper around a zero-value BatchRunner.
func Run(ctx context.Context, ops []Operation, policy WaitPolicy) (Results, error) {
	return (&BatchRunner{}).Run(ctx, ops, policy)
}
