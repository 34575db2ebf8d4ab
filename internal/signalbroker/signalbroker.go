// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package signalbroker listens for termination signals on behalf of a dispatch run.
// By default it listens for SIGINT, SIGTERM and SIGQUIT.
//
// The first signal of a kind is logged and otherwise ignored so that a single
// Ctrl-C does not abandon remote operations half way. The second signal of the
// same kind cancels the run context; every executor that is waiting on a result
// then terminates its process and reports it as timed out.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
)

var termSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// New creates a signal channel subscribed to sigs, or to the termination signals when none are given.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	ch := make(chan os.Signal, 1)

	if len(sigs) == 0 {
		sigs = termSignals
	}

	ctxlog.Debug(ctx, "signal broker created", "signals", sigs)
	signal.Notify(ch, sigs...)

	return ch
}

// WithCancelOnSignals returns a context that is cancelled on the second termination
// signal of one kind. The returned stop function unsubscribes and releases the context.
func WithCancelOnSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := New(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		Watch(ctx, sigCh, cancel)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}

func logWarn(ctx context.Context, msg string, sig os.Signal) {
	ctxlog.Warn(ctx, msg, "signal", sig.String())
}
