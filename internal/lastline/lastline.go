// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package lastline provides a writer that passes data through to another
// writer while keeping track of the last complete line written. It is used on
// child process stderr so that progress displays can show what a long running
// command is doing.
package lastline

import (
	"io"
	"strings"
	"sync"
)

// Writer forwards every write to the destination and records the last complete line.
// It is safe for concurrent use.
type Writer struct {
	dst     io.Writer
	onLine  func(string)
	last    string
	partial strings.Builder // data after the last newline
	mu      sync.Mutex
}

// New returns a Writer that forwards to dst. When onLine is not nil it is
// called with each complete line, without the trailing newline or carriage return.
func New(dst io.Writer, onLine func(string)) *Writer {
	if dst == nil {
		dst = io.Discard
	}

	return &Writer{dst: dst, onLine: onLine}
}

// Write implements io.Writer. Line tracking never fails a write; the result is that of the destination.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	lines := w.process(string(p))
	w.mu.Unlock()

	if w.onLine != nil {
		for _, l := range lines {
			w.onLine(l)
		}
	}

	return w.dst.Write(p) //nolint:wrapcheck
}

// process splits data into complete lines and returns them.
// Must be called with the lock held.
func (w *Writer) process(data string) []string {
	if data == "" {
		return nil
	}

	w.partial.WriteString(data)
	combined := w.partial.String()

	parts := strings.Split(combined, "\n")
	if len(parts) == 1 {
		return nil
	}

	complete := parts[:len(parts)-1]
	for i, l := range complete {
		complete[i] = strings.TrimSuffix(l, "\r")
	}

	w.last = complete[len(complete)-1]
	w.partial.Reset()
	w.partial.WriteString(parts[len(parts)-1])

	return complete
}

// LastLine returns the last complete line, truncated to maxLength with an
// ellipsis when maxLength is positive.
func (w *Writer) LastLine(maxLength int) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := w.last
	if maxLength > 3 && len(result) > maxLength {
		result = result[:maxLength-3] + "..."
	}

	return result
}

// Partial returns the data written after the last newline.
func (w *Writer) Partial() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.partial.String()
}
