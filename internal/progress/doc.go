// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package progress carries lifecycle events from running operations to
// whoever is watching them, such as the terminal UI or a log tail.
package progress
