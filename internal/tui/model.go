// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
)

// OperationStatus is the state of an operation as shown in the TUI.
type OperationStatus int

const (
	StatusPending OperationStatus = iota
	StatusRunning
	StatusSuccess
	StatusFailed
	StatusTimedOut
	StatusLate
)

// String returns a string representation of the status.
func (s OperationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed out"
	case StatusLate:
		return "late"
	default:
		return "unknown"
	}
}

// Finished reports whether the row will not change again.
func (s OperationStatus) Finished() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimedOut
}

// OperationRow is one line of the view.
type OperationRow struct {
	Key       string
	Label     string
	Target    string
	Status    OperationStatus
	StartTime *time.Time
	EndTime   *time.Time
	ExitCode  int
	ErrorMsg  string
	Output    string // last stderr line while running
	mutex     sync.RWMutex
}

// RowInfo is a consistent copy of a row's fields.
type RowInfo struct {
	Label     string
	Target    string
	Status    OperationStatus
	StartTime *time.Time
	EndTime   *time.Time
	ExitCode  int
	ErrorMsg  string
	Output    string
}

// NewOperationRow creates a pending row.
func NewOperationRow(key, label, target string) *OperationRow {
	return &OperationRow{
		Key:    key,
		Label:  label,
		Target: target,
		Status: StatusPending,
	}
}

// UpdateStatus sets the status and records start and end times on the first
// transition into running or a finished state.
func (r *OperationRow) UpdateStatus(status OperationStatus, at time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.Status = status

	switch {
	case status == StatusRunning:
		if r.StartTime == nil {
			r.StartTime = &at
		}
	case status.Finished():
		if r.EndTime == nil {
			r.EndTime = &at
		}
	}
}

// UpdateResult records the exit code and error of a finished operation.
func (r *OperationRow) UpdateResult(exitCode int, errMsg string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.ExitCode = exitCode
	r.ErrorMsg = errMsg
}

// UpdateOutput records the latest output line.
func (r *OperationRow) UpdateOutput(line string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if line = strings.TrimSpace(line); line != "" {
		r.Output = line
	}
}

// Info returns a snapshot of the row.
func (r *OperationRow) Info() RowInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return RowInfo{
		Label:     r.Label,
		Target:    r.Target,
		Status:    r.Status,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		ExitCode:  r.ExitCode,
		ErrorMsg:  r.ErrorMsg,
		Output:    r.Output,
	}
}

// Model represents the TUI application state.
type Model struct {
	rows      map[string]*OperationRow
	order     []string // keys in first-seen order
	width     int
	height    int
	quitting  bool
	completed bool
	results   runbatch.Results
	runErr    error
	mutex     sync.RWMutex

	viewport viewport.Model
	spinner  spinner.Model
	styles   *Styles
}

// Styles contains all the styling for the TUI.
type Styles struct {
	Title   lipgloss.Style
	Pending lipgloss.Style
	Running lipgloss.Style
	Success lipgloss.Style
	Failed  lipgloss.Style
	Late    lipgloss.Style
	Detail  lipgloss.Style
	Error   lipgloss.Style
	Help    lipgloss.Style
	Border  lipgloss.Style
}

// NewStyles creates the default styling for the TUI.
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Late: lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")).
			Bold(true),
		Detail: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Italic(true),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Italic(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
	}
}

// NewModel creates a new TUI model.
func NewModel() *Model {
	styles := NewStyles()

	return &Model{
		rows:     make(map[string]*OperationRow),
		viewport: viewport.New(defaultWidth, defaultHeight),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Running)),
		styles:   styles,
	}
}

// getOrCreateRow returns the row for key, creating it on first sight.
func (m *Model) getOrCreateRow(key, label, target string) *OperationRow {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if row, ok := m.rows[key]; ok {
		return row
	}

	row := NewOperationRow(key, label, target)
	m.rows[key] = row
	m.order = append(m.order, key)

	return row
}

// Rows returns the rows in the order their operations were first reported.
func (m *Model) Rows() []*OperationRow {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rows := make([]*OperationRow, 0, len(m.order))
	for _, k := range m.order {
		rows = append(rows, m.rows[k])
	}

	return rows
}

// Counts returns how many rows are running, finished and failed.
func (m *Model) Counts() (running, finished, failed int) {
	for _, r := range m.Rows() {
		info := r.Info()

		switch {
		case info.Status == StatusRunning || info.Status == StatusLate:
			running++
		case info.Status.Finished():
			finished++

			if info.Status != StatusSuccess {
				failed++
			}
		}
	}

	return running, finished, failed
}

// processProgressEvent applies one event to the matching row.
func (m *Model) processProgressEvent(event progress.Event) {
	label := event.Label
	if label == "" {
		label = event.Key
	}

	row := m.getOrCreateRow(event.Key, label, event.Target)

	switch event.Type {
	case progress.EventStarted:
		row.UpdateStatus(StatusRunning, event.Timestamp)
	case progress.EventCompleted:
		row.UpdateResult(event.ExitCode, "")
		row.UpdateStatus(StatusSuccess, event.Timestamp)
	case progress.EventFailed, progress.EventTimedOut:
		msg := event.Message
		if event.Err != nil {
			msg = event.Err.Error()
		}

		row.UpdateResult(event.ExitCode, msg)

		status := StatusFailed
		if event.Type == progress.EventTimedOut {
			status = StatusTimedOut
		}

		row.UpdateStatus(status, event.Timestamp)
	case progress.EventOutput:
		row.UpdateOutput(event.Message)
	case progress.EventLate:
		if !row.Info().Status.Finished() {
			row.UpdateStatus(StatusLate, event.Timestamp)
		}
	}
}
