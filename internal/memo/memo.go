// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package memo provides a keyed table of values that are computed at most once.
//
// A Table is owned by whoever creates it, typically one CLI invocation, and is
// shared by reference with every goroutine that needs it. Concurrent callers
// asking for the same key wait for a single computation. Failed computations
// are not cached, so a later call retries.
package memo

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Table is a concurrency safe memo table. The zero value is not usable, use New.
type Table struct {
	mu     sync.RWMutex
	values map[string]any
	group  singleflight.Group
}

// New returns an empty table.
func New() *Table {
	return &Table{values: make(map[string]any)}
}

// Lookup returns the cached value for key, if any.
func (t *Table) Lookup(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.values[key]

	return v, ok
}

// Len returns the number of cached keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.values)
}

// Reset drops every cached value.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.values = make(map[string]any)
}

// Do returns the cached value for key or computes it with fn.
// Only one fn runs per key at a time; waiters share its result.
// fn runs detached from the caller's cancellation, so one caller giving up does
// not fail the others waiting on the same key.
func (t *Table) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := t.Lookup(key); ok {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)

	ch := t.group.DoChan(key, func() (any, error) {
		if v, ok := t.Lookup(key); ok {
			return v, nil
		}

		v, err := fn(shared)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		t.values[key] = v
		t.mu.Unlock()

		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Get is a typed wrapper around Table.Do.
func Get[T any](ctx context.Context, t *Table, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := t.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil //nolint:forcetypeassert
}
