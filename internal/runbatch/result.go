// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"io"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
)

// ResultStatus summarises how an operation ended.
type ResultStatus int

const (
	// ResultStatusSuccess means the process exited zero.
	ResultStatusSuccess ResultStatus = iota
	// ResultStatusError means the process exited non-zero or could not be spawned.
	ResultStatusError
	// ResultStatusTimedOut means the process was terminated after its timeout or a cancellation.
	ResultStatusTimedOut
)

// String implements fmt.Stringer.
func (s ResultStatus) String() string {
	switch s {
	case ResultStatusSuccess:
		return "success"
	case ResultStatusError:
		return "error"
	case ResultStatusTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Result is the outcome of one operation.
type Result struct {
	Label    string        // Operation label or command.
	Command  string        // Command as submitted, before adaptation to the target.
	Target   string        // Target the operation ran on.
	ExitCode int           // Process exit code, -1 when spawning failed or the process was signalled.
	Status   ResultStatus  // Summary of the outcome.
	TimedOut bool          // The process was terminated by AwaitResult.
	Error    error         // Spawn, wait, timeout or cancellation error, if any.
	Started  time.Time     // When the process was spawned.
	Duration time.Duration // Wall time until the process was reaped.
}

// Results is an ordered slice of results, results[i] belongs to operation i.
type Results []*Result

// HasError reports whether any result is not a success.
func (r Results) HasError() bool {
	return slices.ContainsFunc(r, func(res *Result) bool {
		return res == nil || res.Status != ResultStatusSuccess
	})
}

// ExitCodes returns the exit codes in submission order.
func (r Results) ExitCodes() []int {
	codes := make([]int, 0, len(r))
	for _, res := range r {
		codes = append(codes, res.ExitCode)
	}

	return codes
}

// Print writes the results to stdout with default options.
func (r Results) Print() error {
	return WriteResults(os.Stdout, r, nil)
}

// Write writes the results to w with default options.
func (r Results) Write(w io.Writer) error {
	return WriteResults(w, r, nil)
}

// WriteWithOptions writes the results to w with the given options.
func (r Results) WriteWithOptions(w io.Writer, options *OutputOptions) error {
	return WriteResults(w, r, options)
}

type resultRecord struct {
	Label    string  `yaml:"label"`
	Command  string  `yaml:"command"`
	Target   string  `yaml:"target"`
	ExitCode int     `yaml:"exit_code"`
	Status   string  `yaml:"status"`
	TimedOut bool    `yaml:"timed_out,omitempty"`
	Error    string  `yaml:"error,omitempty"`
	Started  string  `yaml:"started"`
	Seconds  float64 `yaml:"duration_seconds"`
}

// WriteYAML writes the results to w as a YAML sequence.
func (r Results) WriteYAML(w io.Writer) error {
	records := make([]resultRecord, 0, len(r))

	for _, res := range r {
		rec := resultRecord{
			Label:    res.Label,
			Command:  res.Command,
			Target:   res.Target,
			ExitCode: res.ExitCode,
			Status:   res.Status.String(),
			TimedOut: res.TimedOut,
			Started:  res.Started.Format(time.RFC3339),
			Seconds:  res.Duration.Seconds(),
		}

		if res.Error != nil {
			rec.Error = res.Error.Error()
		}

		records = append(records, rec)
	}

	return yaml.NewEncoder(w).Encode(records)
}
