// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
)

// WorkFunc runs a batch, reporting progress to reporter.
type WorkFunc func(ctx context.Context, reporter progress.Reporter) (runbatch.Results, error)

// Runner manages the TUI application and progress event integration.
type Runner struct {
	model    *Model
	program  *tea.Program
	reporter *TUIReporter
	mutex    sync.Mutex

	// ExitOnCompletion quits the program as soon as the work function returns
	// instead of waiting for the user to press q.
	ExitOnCompletion bool
}

// TUIReporter implements progress.Reporter and forwards events to the TUI.
type TUIReporter struct {
	program *tea.Program
	closed  bool
	mutex   sync.RWMutex
}

// NewTUIReporter creates a new TUI progress reporter.
func NewTUIReporter(program *tea.Program) *TUIReporter {
	return &TUIReporter{
		program: program,
	}
}

// Report implements progress.Reporter.Report.
func (tr *TUIReporter) Report(event progress.Event) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	if tr.closed || tr.program == nil {
		return
	}

	tr.program.Send(ProgressEventMsg{Event: event})
}

// Close implements progress.Reporter.Close.
func (tr *TUIReporter) Close() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.closed = true
}

// NewRunner creates a new TUI runner. Options are passed to the bubbletea program.
func NewRunner(ctx context.Context, opts ...tea.ProgramOption) *Runner {
	model := NewModel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(model, opts...)

	return &Runner{
		model:    model,
		program:  program,
		reporter: NewTUIReporter(program),
	}
}

// Reporter returns the progress reporter for this runner.
func (r *Runner) Reporter() progress.Reporter {
	return r.reporter
}

// Model returns the model rendered by the program.
func (r *Runner) Model() *Model {
	return r.model
}

// Run starts the TUI and calls work with the TUI reporter. It returns work's
// results once both the work and the program have finished. Quitting the
// program early does not stop the work, which is still awaited.
func (r *Runner) Run(ctx context.Context, work WorkFunc) (runbatch.Results, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	type outcome struct {
		results runbatch.Results
		err     error
	}

	workDone := make(chan outcome, 1)

	go func() {
		res, err := work(ctx, r.reporter)
		workDone <- outcome{results: res, err: err}
	}()

	tuiDone := make(chan error, 1)

	go func() {
		_, err := r.program.Run()
		tuiDone <- err
	}()

	var (
		out    outcome
		tuiErr error
	)

	select {
	case out = <-workDone:
		r.program.Send(BatchCompletedMsg{Results: out.results, Err: out.err})

		if r.ExitOnCompletion {
			r.program.Quit()
		}

		tuiErr = <-tuiDone

	case tuiErr = <-tuiDone:
		out = <-workDone
	}

	r.reporter.Close()

	if out.err != nil {
		return out.results, out.err
	}

	if tuiErr != nil && ctx.Err() == nil {
		return out.results, tuiErr
	}

	return out.results, nil
}

// RunWithoutTUI calls work with reporter, for headless environments.
func RunWithoutTUI(ctx context.Context, work WorkFunc, reporter progress.Reporter) (runbatch.Results, error) {
	return work(ctx, progress.OrNull(reporter))
}
