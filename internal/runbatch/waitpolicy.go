// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWaitPolicy is returned when a wait policy cannot be resolved for a batch.
var ErrInvalidWaitPolicy = errors.New("invalid wait policy")

const maxWaitSeconds = float64(math.MaxInt64 / int64(time.Second))

type waitKind int

const (
	waitNone waitKind = iota
	waitMin
	waitMax
	waitExplicit
)

// WaitPolicy decides how long a batch waits after starting every operation
// and before collecting results.
type WaitPolicy struct {
	kind waitKind
	d    time.Duration
}

var (
	// WaitNone collects immediately; each operation is still bounded by its own timeout.
	WaitNone = WaitPolicy{kind: waitNone}
	// WaitMin waits for the smallest finite timeout in the batch.
	WaitMin = WaitPolicy{kind: waitMin}
	// WaitMax waits for the largest finite timeout in the batch.
	WaitMax = WaitPolicy{kind: waitMax}
)

// WaitFor waits for an explicit duration, which must be positive.
func WaitFor(d time.Duration) WaitPolicy {
	return WaitPolicy{kind: waitExplicit, d: d}
}

// ParseWaitPolicy accepts none, min, max, a number of seconds or a Go duration.
// The empty string is WaitNone.
func ParseWaitPolicy(s string) (WaitPolicy, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "none", "forever":
		return WaitNone, nil
	case "min":
		return WaitMin, nil
	case "max":
		return WaitMax, nil
	default:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			if math.IsInf(secs, 0) || math.IsNaN(secs) || secs > maxWaitSeconds {
				return WaitNone, fmt.Errorf("%w: %q is not a representable number of seconds", ErrInvalidWaitPolicy, s)
			}

			return validExplicit(time.Duration(secs * float64(time.Second)))
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return WaitNone, fmt.Errorf("%w: %q is not none, min, max or a duration", ErrInvalidWaitPolicy, s)
		}

		return validExplicit(d)
	}
}

func validExplicit(d time.Duration) (WaitPolicy, error) {
	if d <= 0 {
		return WaitNone, fmt.Errorf("%w: explicit wait %s must be positive", ErrInvalidWaitPolicy, d)
	}

	return WaitFor(d), nil
}

// String returns the form accepted by ParseWaitPolicy.
func (p WaitPolicy) String() string {
	switch p.kind {
	case waitMin:
		return "min"
	case waitMax:
		return "max"
	case waitExplicit:
		return p.d.String()
	default:
		return "none"
	}
}

// Resolve returns the pre-collection wait for ops. Zero means do not wait.
// MIN and MAX need at least one operation with a finite timeout.
func (p WaitPolicy) Resolve(ops []Operation) (time.Duration, error) {
	switch p.kind {
	case waitNone:
		return 0, nil
	case waitExplicit:
		if p.d <= 0 {
			return 0, fmt.Errorf("%w: explicit wait %s must be positive", ErrInvalidWaitPolicy, p.d)
		}

		return p.d, nil
	}

	var (
		resolved time.Duration
		found    bool
	)

	for _, op := range ops {
		if !op.HasTimeout() {
			continue
		}

		switch {
		case !found:
			resolved = op.Timeout
		case p.kind == waitMin:
			resolved = min(resolved, op.Timeout)
		default:
			resolved = max(resolved, op.Timeout)
		}

		found = true
	}

	if !found {
		return 0, fmt.Errorf("%w: %s needs at least one operation with a timeout", ErrInvalidWaitPolicy, p)
	}

	return resolved, nil
}
