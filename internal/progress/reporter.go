// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"sync"
)

// ChannelReporter implements Reporter using a buffered channel.
// Events are dropped rather than blocking the reporting goroutine.
type ChannelReporter struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	wg     sync.WaitGroup
	once   sync.Once
}

// NewChannelReporter creates a new ChannelReporter with the specified buffer size.
func NewChannelReporter(ctx context.Context, bufferSize int) *ChannelReporter {
	reporterCtx, cancel := context.WithCancel(ctx)

	return &ChannelReporter{
		ch:     make(chan Event, bufferSize),
		ctx:    reporterCtx,
		cancel: cancel,
	}
}

// Report implements Reporter.Report.
func (cr *ChannelReporter) Report(event Event) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	if cr.ctx.Err() != nil {
		return
	}

	select {
	case cr.ch <- event:
	default:
	}
}

// Close implements Reporter.Close. Events already buffered are still delivered to a listener.
func (cr *ChannelReporter) Close() {
	cr.once.Do(func() {
		cr.mu.Lock()
		cr.cancel()
		close(cr.ch)
		cr.mu.Unlock()
		cr.wg.Wait()
	})
}

// Listen forwards events to listener on a new goroutine until the reporter is closed.
func (cr *ChannelReporter) Listen(listener Listener) {
	cr.wg.Add(1)

	go func() {
		defer cr.wg.Done()

		for event := range cr.ch {
			listener.OnEvent(event)
		}
	}()
}

// Events returns the underlying channel for manual consumption.
func (cr *ChannelReporter) Events() <-chan Event {
	return cr.ch
}
