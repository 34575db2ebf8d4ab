// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"time"
)

// Event is a point-in-time update about one operation.
type Event struct {
	Key       string    // Unique key of the operation within a run, e.g. "build1.example.com/2".
	Label     string    // Human readable operation label.
	Target    string    // Where the operation runs, user@host:workdir.
	Type      EventType // What happened.
	Message   string    // Human-readable status message.
	Timestamp time.Time // When the event occurred.
	ExitCode  int       // Set for EventCompleted, EventFailed and EventTimedOut.
	Err       error     // Set for EventFailed and EventTimedOut.
}

// EventType represents the type of progress event.
type EventType int

const (
	// EventStarted indicates the process was spawned.
	EventStarted EventType = iota
	// EventCompleted indicates the process exited zero.
	EventCompleted
	// EventFailed indicates the process exited non-zero or could not be spawned.
	EventFailed
	// EventTimedOut indicates the process exceeded its timeout and was terminated.
	EventTimedOut
	// EventLate indicates a target missed the orchestrator deadline and is being joined without bound.
	EventLate
	// EventOutput carries the latest complete line the process wrote to stderr in Message.
	EventOutput
)

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	switch et {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventTimedOut:
		return "timed out"
	case EventLate:
		return "late"
	case EventOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow for the same key.
func (et EventType) Terminal() bool {
	return et == EventCompleted || et == EventFailed || et == EventTimedOut
}

// Reporter is the interface for sending progress events.
type Reporter interface {
	// Report sends an event. Implementations must not block.
	Report(event Event)
	// Close signals that no more events will be sent.
	Close()
}

// Listener receives progress events.
type Listener interface {
	OnEvent(event Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}

// NullReporter discards every event.
type NullReporter struct{}

// Report does nothing.
func (NullReporter) Report(Event) {}

// Close does nothing.
func (NullReporter) Close() {}

// OrNull returns r, or a NullReporter when r is nil.
func OrNull(r Reporter) Reporter {
	if r == nil {
		return NullReporter{}
	}

	return r
}
