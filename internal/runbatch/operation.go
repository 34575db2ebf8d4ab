// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/target"
)

// ErrInvalidOperation is returned when an operation cannot be run.
var ErrInvalidOperation = errors.New("invalid operation")

// Operation is one shell command to run on one target.
// Operations are passed by value and never modified once submitted.
type Operation struct {
	Label         string        // Optional display name, defaults to the command.
	Command       string        // Shell command line.
	Target        target.Target // Where to run it.
	Timeout       time.Duration // Zero means no bound.
	StopOnFailure bool          // A non-zero exit becomes a *FailedError instead of a warning.
}

// Name returns the label, or the command when no label is set.
func (o Operation) Name() string {
	if o.Label != "" {
		return o.Label
	}

	return o.Command
}

// HasTimeout reports whether the operation has a finite timeout.
func (o Operation) HasTimeout() bool {
	return o.Timeout > 0
}

// Validate checks the operation can be dispatched.
func (o Operation) Validate() error {
	if o.Command == "" {
		return fmt.Errorf("%w: %q has an empty command", ErrInvalidOperation, o.Label)
	}

	if o.Timeout < 0 {
		return fmt.Errorf("%w: %q has negative timeout %s", ErrInvalidOperation, o.Name(), o.Timeout)
	}

	return nil
}
