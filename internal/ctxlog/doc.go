// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog provides a context-aware logger built on log/slog.
//
// The logger travels inside a context.Context so that every goroutine started
// for an operation or target logs with the attributes of its caller.
// The level is shared through LevelVar and is initialised from an environment
// variable derived from the executable name, for the myrepo binary this is
// MYREPO_LOG_LEVEL. Unset or unknown values default to WARN.
//
// The default handler is a pretty console handler that renders attributes as
// coloured JSON.
package ctxlog
