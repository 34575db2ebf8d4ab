// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmdstate carries state owned by one CLI invocation through the
// command context, and holds helpers shared by the subcommands.
package cmdstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/environ"
	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/matt-FFFFFF/myrepo/internal/plan"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/urfave/cli/v3"
)

const (
	// CliExitStr is passed to cli.Exit when the error has already been logged.
	CliExitStr = ""

	// Flag names shared by the dispatch commands.
	HostFlag          = "host"
	UserFlag          = "user"
	WorkdirFlag       = "workdir"
	TimeoutFlag       = "timeout"
	WaitFlag          = "wait"
	StopOnFailureFlag = "stop-on-failure"
	DetailsFlag       = "details"
)

// ErrNoCommand is returned when there is nothing to dispatch.
var ErrNoCommand = errors.New("no command given")

type memoKey struct{}

// WithMemo stores tbl in ctx.
func WithMemo(ctx context.Context, tbl *memo.Table) context.Context {
	return context.WithValue(ctx, memoKey{}, tbl)
}

// Memo returns the invocation's memo table. A new table is returned when none was stored.
func Memo(ctx context.Context) *memo.Table {
	if tbl, ok := ctx.Value(memoKey{}).(*memo.Table); ok && tbl != nil {
		return tbl
	}

	return memo.New()
}

// DispatchFlags are the flags of commands that send one command line to many hosts.
func DispatchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    HostFlag,
			Aliases: []string{"H"},
			Usage:   "Host to run on, specify multiple times for several hosts. Defaults to localhost.",
		},
		&cli.StringFlag{
			Name:    UserFlag,
			Aliases: []string{"u"},
			Usage:   "User for remote hosts. Defaults to the current user.",
		},
		&cli.StringFlag{
			Name:    WorkdirFlag,
			Aliases: []string{"C"},
			Usage:   "Working directory on every host.",
		},
		&cli.StringFlag{
			Name:  TimeoutFlag,
			Usage: "Per operation timeout, seconds or a Go duration. Empty means no timeout.",
		},
		&cli.StringFlag{
			Name:    WaitFlag,
			Aliases: []string{"w"},
			Usage:   "How long to let operations run before collecting results: none, min, max or seconds.",
			Value:   "none",
		},
		&cli.BoolFlag{
			Name:  StopOnFailureFlag,
			Usage: "Treat a non-zero exit code as an error instead of a warning.",
		},
		&cli.BoolFlag{
			Name:  DetailsFlag,
			Usage: "Include the duration of each operation in the output.",
		},
	}
}

// Dispatcher sends one command line to a fixed set of targets.
type Dispatcher struct {
	Targets       []target.Target
	Timeout       string
	Wait          runbatch.WaitPolicy
	StopOnFailure bool
	Batch         *runbatch.BatchRunner
}

// NewDispatcher builds a Dispatcher from DispatchFlags.
func NewDispatcher(ctx context.Context, cmd *cli.Command) (*Dispatcher, error) {
	wait, err := runbatch.ParseWaitPolicy(cmd.String(WaitFlag))
	if err != nil {
		return nil, err
	}

	if _, err := plan.ParseSeconds(cmd.String(TimeoutFlag)); err != nil {
		return nil, err
	}

	user := cmd.String(UserFlag)
	if user == "" {
		if user, err = environ.Username(ctx, Memo(ctx)); err != nil {
			return nil, err
		}
	}

	hosts := cmd.StringSlice(HostFlag)
	if len(hosts) == 0 {
		hosts = []string{target.LocalHost}
	}

	d := &Dispatcher{
		Timeout:       cmd.String(TimeoutFlag),
		Wait:          wait,
		StopOnFailure: cmd.Bool(StopOnFailureFlag),
		Batch:         &runbatch.BatchRunner{},
	}

	for _, h := range hosts {
		d.Targets = append(d.Targets, target.Target{Host: h, User: user, Workdir: cmd.String(WorkdirFlag)})
	}

	return d, nil
}

// Operations returns one operation per target running line.
func (d *Dispatcher) Operations(line string) ([]runbatch.Operation, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrNoCommand
	}

	timeout, err := plan.ParseSeconds(d.Timeout)
	if err != nil {
		return nil, err
	}

	ops := make([]runbatch.Operation, 0, len(d.Targets))

	for _, t := range d.Targets {
		ops = append(ops, runbatch.Operation{
			Label:         t.String(),
			Command:       line,
			Target:        t,
			Timeout:       timeout,
			StopOnFailure: d.StopOnFailure,
		})
	}

	return ops, nil
}

// Dispatch runs line on every target as one batch.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (runbatch.Results, error) {
	ops, err := d.Operations(line)
	if err != nil {
		return nil, err
	}

	return d.Batch.Run(ctx, ops, d.Wait)
}

// WriteResults prints results to the command's writer.
func WriteResults(cmd *cli.Command, res runbatch.Results) error {
	opts := runbatch.DefaultOutputOptions()
	opts.ShowDuration = cmd.Bool(DetailsFlag)

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}

	if err := res.WriteWithOptions(w, opts); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	return nil
}

// Fail logs err and returns a cli exit error with code 1.
func Fail(ctx context.Context, msg string, err error) error {
	ctxlog.Error(ctx, msg, "error", err)
	return cli.Exit(CliExitStr, 1)
}
