// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package execute implements the exec command, which runs one command line on several hosts at once.
package execute

import (
	"context"
	"strings"

	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/urfave/cli/v3"
)

// ExecCmd runs a command line on every --host as a single batch.
var ExecCmd = &cli.Command{
	Name:      "exec",
	Usage:     "Run a command on one or more hosts in parallel",
	ArgsUsage: "-- COMMAND [ARGS...]",
	Description: `Run a command line on every host given with --host, all at once.
Local hosts (localhost, or no --host at all) run the command through the shell.
Other hosts are reached with ssh. Results are printed in host order.`,
	Flags:  cmdstate.DispatchFlags(),
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	ctx = ctxlog.With(ctx, "command", cmd.Name)

	line := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(line) == "" {
		ctxlog.Error(ctx, "Please give the command to run after --.")
		return cli.Exit(cmdstate.CliExitStr, 1)
	}

	d, err := cmdstate.NewDispatcher(ctx, cmd)
	if err != nil {
		return cmdstate.Fail(ctx, "invalid arguments", err)
	}

	res, runErr := d.Dispatch(ctx, line)

	if err := cmdstate.WriteResults(cmd, res); err != nil {
		return cmdstate.Fail(ctx, "could not display results", err)
	}

	if runErr != nil {
		return cmdstate.Fail(ctx, "command failed", runErr)
	}

	return nil
}
