// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const durationRounding = 10 * time.Millisecond

// OutputOptions controls what is included in the output.
type OutputOptions struct {
	ShowTarget   bool // Whether to print the target after the label
	ShowDuration bool // Whether to print the wall time of each operation
	ShowErrors   bool // Whether to print the error of failed operations
}

// DefaultOutputOptions returns a default set of output options.
func DefaultOutputOptions() *OutputOptions {
	return &OutputOptions{
		ShowTarget:   true,
		ShowDuration: false,
		ShowErrors:   true,
	}
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	timeoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// WriteResults writes one status line per result to w, in order.
func WriteResults(w io.Writer, results Results, options *OutputOptions) error {
	if options == nil {
		options = DefaultOutputOptions()
	}

	for _, r := range results {
		if err := writeResult(w, r, options); err != nil {
			return err
		}
	}

	return nil
}

func writeResult(w io.Writer, r *Result, options *OutputOptions) error {
	var (
		marker string
		style  lipgloss.Style
	)

	switch r.Status {
	case ResultStatusSuccess:
		marker, style = "✓", successStyle
	case ResultStatusTimedOut:
		marker, style = "⧗", timeoutStyle
	default:
		marker, style = "✗", errorStyle
	}

	label := r.Label
	if label == "" {
		label = "[unnamed]"
	}

	sb := strings.Builder{}
	sb.WriteString(style.Render(marker + " " + label))

	if options.ShowTarget && r.Target != "" {
		sb.WriteString(dimStyle.Render(" @ " + r.Target))
	}

	if r.ExitCode != 0 {
		fmt.Fprintf(&sb, " (exit code: %d)", r.ExitCode)
	}

	if options.ShowDuration {
		sb.WriteString(dimStyle.Render(" [" + r.Duration.Round(durationRounding).String() + "]"))
	}

	sb.WriteString("\n")

	if options.ShowErrors && r.Error != nil && r.Status != ResultStatusSuccess {
		for _, line := range strings.Split(r.Error.Error(), "\n") {
			sb.WriteString("  ")
			sb.WriteString(style.Render("➜"))
			sb.WriteString(" ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())

	return err
}
