// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package runbatch runs shell operations concurrently and collects their results.
//
// An Operation is a command string bound to a target, an optional timeout and a
// failure policy. An Executor runs one Operation as a child process: Start
// spawns it and AwaitResult waits for it, terminating the process when the
// timeout expires. A BatchRunner starts every operation of a batch at once,
// optionally waits according to a WaitPolicy, then collects the results in
// submission order.
//
// Termination is best effort. A timed out process first receives SIGTERM, then
// SIGKILL after a grace period, and is always reaped before its result is
// returned.
package runbatch
