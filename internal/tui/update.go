// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
)

const (
	defaultWidth                = 80
	defaultHeight               = 20
	minViewportWidth            = 20
	reservedLines               = 6 // title, border and footer
	minStatusBarAvailableHeight = 10
	durationRounding            = 100 * time.Millisecond
)

// ProgressEventMsg wraps a progress event for the tea framework.
type ProgressEventMsg struct {
	Event progress.Event
}

// BatchCompletedMsg indicates that the work function has returned.
type BatchCompletedMsg struct {
	Results runbatch.Results
	Err     error
}

// Init implements bubbletea.Model.Init.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements bubbletea.Model.Update.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	m.viewport, cmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mutex.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewportSize()
		m.mutex.Unlock()

		return m, cmd

	case spinner.TickMsg:
		var tick tea.Cmd

		m.spinner, tick = m.spinner.Update(msg)

		return m, tea.Batch(cmd, tick)

	case ProgressEventMsg:
		m.processProgressEvent(msg.Event)
		return m, cmd

	case BatchCompletedMsg:
		m.mutex.Lock()
		m.completed = true
		m.results = msg.Results
		m.runErr = msg.Err
		m.mutex.Unlock()

		return m, cmd

	case tea.QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, cmd
}

func (m *Model) updateViewportSize() {
	m.viewport.Width = max(m.width-2, minViewportWidth)
	m.viewport.Height = max(m.height-reservedLines, 1)
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements bubbletea.Model.View.
func (m *Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var content strings.Builder

	for _, row := range m.Rows() {
		m.renderRow(&content, row.Info())
	}

	m.mutex.RLock()
	completed, results, runErr := m.completed, m.results, m.runErr
	height := m.height
	m.mutex.RUnlock()

	if completed {
		content.WriteString("\n")

		switch {
		case runErr != nil:
			content.WriteString(m.styles.Failed.Render("Batch failed: " + runErr.Error()))
		case results.HasError():
			content.WriteString(m.styles.Failed.Render("Batch completed with errors"))
		default:
			content.WriteString(m.styles.Success.Render("Batch completed successfully"))
		}

		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())

	var view strings.Builder

	view.WriteString(m.styles.Title.Render("myrepo"))
	view.WriteString("\n")
	view.WriteString(m.styles.Border.Render(m.viewport.View()))

	if height == 0 || height > minStatusBarAvailableHeight {
		view.WriteString("\n")
		view.WriteString(m.renderStatusBar())
		view.WriteString("\n")

		help := "↑/↓ or j/k to scroll, 'q' to quit"
		if !completed {
			help = "↑/↓ or j/k to scroll, 'q' to stop waiting for the batch"
		}

		view.WriteString(m.styles.Help.Render(help))
	}

	return view.String()
}

func (m *Model) renderStatusBar() string {
	running, finished, failed := m.Counts()

	bar := fmt.Sprintf("%d running, %d finished", running, finished)
	if failed > 0 {
		return bar + ", " + m.styles.Failed.Render(fmt.Sprintf("%d failed", failed))
	}

	return bar
}

// marker returns the status glyph and the style for the row label.
func (m *Model) marker(status OperationStatus) (string, lipgloss.Style) {
	switch status {
	case StatusRunning:
		return m.spinner.View(), m.styles.Running
	case StatusSuccess:
		return m.styles.Success.Render("✓"), m.styles.Success
	case StatusFailed:
		return m.styles.Failed.Render("✗"), m.styles.Failed
	case StatusTimedOut:
		return m.styles.Failed.Render("⧗"), m.styles.Failed
	case StatusLate:
		return m.styles.Late.Render("!"), m.styles.Late
	default:
		return m.styles.Pending.Render("·"), m.styles.Pending
	}
}

func (m *Model) renderRow(b *strings.Builder, info RowInfo) {
	icon, style := m.marker(info.Status)

	line := fmt.Sprintf("%s %s", icon, style.Render(info.Label))

	if info.Target != "" {
		line += m.styles.Detail.Render(" @ " + info.Target)
	}

	if info.StartTime != nil {
		end := time.Now()
		if info.EndTime != nil {
			end = *info.EndTime
		}

		line += m.styles.Detail.Render(fmt.Sprintf(" (%v)", end.Sub(*info.StartTime).Round(durationRounding)))
	}

	switch info.Status {
	case StatusRunning:
		if info.Output != "" {
			line += " " + m.styles.Detail.Render(info.Output)
		}
	case StatusFailed, StatusTimedOut:
		line += " " + m.styles.Error.Render(fmt.Sprintf("rc=%d %s", info.ExitCode, info.ErrorMsg))
	case StatusLate:
		line += " " + m.styles.Late.Render("missed deadline")
	}

	b.WriteString(lipgloss.NewStyle().MaxWidth(max(m.viewport.Width, minViewportWidth)).Render(line))
	b.WriteString("\n")
}
