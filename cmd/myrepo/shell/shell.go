// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package shell implements an interactive prompt that sends every line to a set of hosts.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/peterh/liner"
	"github.com/urfave/cli/v3"
)

const prompt = "myrepo> "

// ShellCmd starts the interactive prompt.
var ShellCmd = &cli.Command{
	Name:  "shell",
	Usage: "Interactive prompt that runs each line on every host",
	Description: `Read command lines interactively and run each one on every --host as a batch.
Type exit or quit, or press Ctrl-D, to leave. Ctrl-C abandons the current line.
Line history is kept for the session only.`,
	Flags:  cmdstate.DispatchFlags(),
	Action: actionFunc,
}

// LineReader is the part of liner.State the prompt loop uses.
type LineReader interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	ctx = ctxlog.With(ctx, "command", cmd.Name)

	d, err := cmdstate.NewDispatcher(ctx, cmd)
	if err != nil {
		return cmdstate.Fail(ctx, "invalid arguments", err)
	}

	line := liner.NewLiner()
	defer line.Close() //nolint:errcheck

	line.SetCtrlCAborts(true)

	hosts := make([]string, 0, len(d.Targets))
	for _, t := range d.Targets {
		hosts = append(hosts, t.String())
	}

	fmt.Fprintf(cmd.Root().Writer, "Sending commands to %s\n", strings.Join(hosts, ", ")) //nolint:errcheck

	return Loop(ctx, line, func(ctx context.Context, input string) error {
		res, err := d.Dispatch(ctx, input)
		if werr := cmdstate.WriteResults(cmd, res); werr != nil {
			return werr
		}

		return err
	})
}

// Loop prompts until end of input, an exit command or ctx is done. Each
// non-empty line is recorded in the history and passed to dispatch. Dispatch
// errors are logged and the loop continues.
func Loop(ctx context.Context, r LineReader, dispatch func(context.Context, string) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := r.Prompt(prompt)

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case err != nil:
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		r.AppendHistory(input)

		if input == "exit" || input == "quit" {
			return nil
		}

		if err := dispatch(ctx, input); err != nil {
			ctxlog.Error(ctx, "command failed", "line", input, "error", err)
		}
	}
}
