// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the myrepo command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/matt-FFFFFF/myrepo"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/execute"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/repo"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/run"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/shell"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/matt-FFFFFF/myrepo/internal/signalbroker"
	"github.com/urfave/cli/v3"
)

const (
	verboseFlag   = "verbose"
	debugFlag     = "debug"
	quietFlag     = "quiet"
	logFormatFlag = "log-format"
)

// ErrLogFormat is returned for a --log-format other than text or json.
var ErrLogFormat = fmt.Errorf("unknown log format")

// rootCmd is the root command for the CLI.
var rootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		execute.ExecCmd,
		repo.RepoCmd,
		shell.ShellCmd,
		versionCmd,
	},
	Flags:     rootFlags(),
	Before:    before,
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "myrepo",
	Description: `myrepo runs shell commands on many hosts at once and maintains yum
repositories built from source packages. Commands run locally through the
shell or remotely over ssh; every batch is started in parallel and its
results are collected in order, with per-command timeouts.

The log level can also be set with the ` + "`MYREPO_LOG_LEVEL`" + ` environment variable.`,
	Usage:     "myrepo exec --host build1 --host build2 -- uname -r",
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}

// rootFlags are the global logging flags.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    verboseFlag,
			Aliases: []string{"v"},
			Usage:   "Log progress messages",
		},
		&cli.BoolFlag{
			Name:  debugFlag,
			Usage: "Log debug messages and show the standard output of every command",
		},
		&cli.BoolFlag{
			Name:    quietFlag,
			Aliases: []string{"q"},
			Usage:   "Log errors only",
		},
		&cli.StringFlag{
			Name:  logFormatFlag,
			Usage: "Log format, text or json",
			Value: "text",
		},
	}
}

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "Print the version",
	Action: func(_ context.Context, cmd *cli.Command) error {
		_, err := fmt.Fprintln(cmd.Root().Writer, cmd.Root().Version)
		return err
	},
}

// before applies the global logging flags.
func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool(debugFlag):
		ctxlog.LevelVar.Set(slog.LevelDebug)
	case cmd.Bool(verboseFlag):
		ctxlog.LevelVar.Set(slog.LevelInfo)
	case cmd.Bool(quietFlag):
		ctxlog.LevelVar.Set(slog.LevelError)
	}

	switch cmd.String(logFormatFlag) {
	case "text":
	case "json":
		ctx = ctxlog.New(ctx, ctxlog.JSONLogger)
	default:
		return ctx, fmt.Errorf("%w: %q", ErrLogFormat, cmd.String(logFormatFlag))
	}

	return ctx, nil
}

func main() {
	ctx := ctxlog.New(context.Background(), ctxlog.DefaultLogger)
	ctx = cmdstate.WithMemo(ctx, memo.New())

	ctx, stop := signalbroker.WithCancelOnSignals(ctx)
	defer stop()

	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", myrepo.Version, myrepo.Commit)

	err := rootCmd.Run(ctx, os.Args) // Err is handled by cli framework

	if ctx.Err() != nil {
		ctxlog.Error(ctx, "command terminated due to cancellation", "error", context.Cause(ctx))
		stop()
		os.Exit(1) //nolint:gocritic
	}

	if err != nil {
		ctxlog.Error(ctx, "command execution failed", "error", err)
		stop()
		os.Exit(1)
	}
}
