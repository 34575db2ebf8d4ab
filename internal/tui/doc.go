// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tui provides a live terminal view of a batch while it runs. Each
// operation is shown on its own row with a status marker, elapsed time and,
// once it has finished, its exit code or error. Targets that miss the
// orchestrator deadline are flagged as late.
//
// The view is driven by progress events: Runner hands its reporter to the work
// function, and every event the executors emit becomes a message for the
// bubbletea program.
package tui
