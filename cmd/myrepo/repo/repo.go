// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package repo implements the repo command and its init, update, build and deploy subcommands.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/orchestrator"
	"github.com/matt-FFFFFF/myrepo/internal/plan"
	"github.com/matt-FFFFFF/myrepo/internal/repo"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/settings"
	"github.com/urfave/cli/v3"
)

const (
	configFlag   = "config"
	serverFlag   = "server"
	userFlag     = "user"
	distsFlag    = "dists"
	subdirFlag   = "subdir"
	topdirFlag   = "topdir"
	signKeyFlag  = "signkey"
	timeoutFlag  = "timeout"
	deadlineFlag = "deadline"
	settleFlag   = "settle"
)

// ErrNoPackages is returned by build and deploy without source packages.
var ErrNoPackages = errors.New("no source packages given")

// RepoCmd groups the repository maintenance commands.
var RepoCmd = &cli.Command{
	Name:  "repo",
	Usage: "Maintain yum repositories",
	Description: `Create, update, build for and deploy to yum repositories.
One repository is maintained per distribution release named by --dists,
and the chosen action runs for all of them in parallel.

Settings are read from /etc/myreporc, /etc/myrepo.d/*.conf and then
$MYREPORC or ~/.myreporc. Flags override settings.`,
	Flags: repoFlags(),
	Commands: []*cli.Command{
		{
			Name:   "init",
			Usage:  "Create the repository directories",
			Action: action(initAction),
		},
		{
			Name:   "update",
			Usage:  "Link noarch packages and refresh repository metadata",
			Action: action(updateAction),
		},
		{
			Name:      "build",
			Usage:     "Build source packages with mock for every distribution",
			ArgsUsage: "SRPM...",
			Action:    action(buildAction),
		},
		{
			Name:      "deploy",
			Usage:     "Build source packages, copy the results into the repositories and update them",
			ArgsUsage: "SRPM...",
			Action:    action(deployAction),
		},
	},
}

// repoFlags returns the flags shared by every repo subcommand.
func repoFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:      configFlag,
			Usage:     "Read only this settings file",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:  serverFlag,
			Usage: "Server hosting the repositories. Defaults to this host.",
		},
		&cli.StringFlag{
			Name:  userFlag,
			Usage: "Owner of the repositories on the server. Defaults to the current user.",
		},
		&cli.StringFlag{
			Name:    distsFlag,
			Aliases: []string{"d"},
			Usage:   "Comma separated name-version-arch[:mock-config] list, e.g. fedora-14-x86_64,fedora-14-i386",
		},
		&cli.StringFlag{
			Name:  subdirFlag,
			Usage: "Directory under ~/public_html holding the repositories",
		},
		&cli.StringFlag{
			Name:  topdirFlag,
			Usage: "Repository root on the server, overrides --subdir",
		},
		&cli.StringFlag{
			Name:  signKeyFlag,
			Usage: "GPG key name used to sign built packages",
		},
		&cli.StringFlag{
			Name:  timeoutFlag,
			Usage: "Per operation timeout, seconds or a Go duration",
		},
		&cli.StringFlag{
			Name:  deadlineFlag,
			Usage: "How long to wait for every repository before reporting stragglers",
			Value: fmt.Sprintf("%d", int(orchestrator.DefaultDeadline.Seconds())),
		},
		&cli.StringFlag{
			Name:  settleFlag,
			Usage: "Pause after starting every repository before joining them",
			Value: fmt.Sprintf("%d", int(orchestrator.DefaultSettleDelay.Seconds())),
		},
		&cli.StringFlag{
			Name:    cmdstate.WaitFlag,
			Aliases: []string{"w"},
			Usage:   "Wait policy for build and copy batches: none, min, max or seconds.",
			Value:   "none",
		},
		&cli.BoolFlag{
			Name:  cmdstate.DetailsFlag,
			Usage: "Include the duration of each operation in the output.",
		},
	}
}

// perRepo runs one subcommand against one repository.
type perRepo func(ctx context.Context, rn *repo.Runner, r *repo.Repo, srpms []string) (runbatch.Results, error)

func initAction(ctx context.Context, rn *repo.Runner, r *repo.Repo, _ []string) (runbatch.Results, error) {
	return rn.Init(ctx, r)
}

func updateAction(ctx context.Context, rn *repo.Runner, r *repo.Repo, _ []string) (runbatch.Results, error) {
	return rn.Update(ctx, r)
}

func buildAction(ctx context.Context, rn *repo.Runner, r *repo.Repo, srpms []string) (runbatch.Results, error) {
	return eachPackage(ctx, srpms, func(srpm string) (runbatch.Results, error) {
		return rn.Build(ctx, r, srpm)
	})
}

func deployAction(ctx context.Context, rn *repo.Runner, r *repo.Repo, srpms []string) (runbatch.Results, error) {
	return eachPackage(ctx, srpms, func(srpm string) (runbatch.Results, error) {
		return rn.Deploy(ctx, r, srpm)
	})
}

// eachPackage calls fn for each srpm in turn and stops at the first error.
func eachPackage(ctx context.Context, srpms []string, fn func(string) (runbatch.Results, error)) (runbatch.Results, error) {
	if len(srpms) == 0 {
		return nil, ErrNoPackages
	}

	var all runbatch.Results

	for _, s := range srpms {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		res, err := fn(s)
		all = append(all, res...)

		if err != nil {
			return all, fmt.Errorf("%s: %w", s, err)
		}
	}

	return all, nil
}

func action(fn perRepo) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		ctx = ctxlog.With(ctx, "command", "repo "+cmd.Name)

		srpms := cmd.Args().Slice()
		if (cmd.Name == "build" || cmd.Name == "deploy") && len(srpms) == 0 {
			ctxlog.Error(ctx, "Please give at least one source package.")
			return cli.Exit(cmdstate.CliExitStr, 1)
		}

		s, err := loadSettings(ctx, cmd)
		if err != nil {
			return cmdstate.Fail(ctx, "could not load settings", err)
		}

		repos, err := s.Repos()
		if err != nil {
			return cmdstate.Fail(ctx, "invalid distributions", err)
		}

		o, rn, err := newOrchestrator(ctx, cmd)
		if err != nil {
			return cmdstate.Fail(ctx, "invalid arguments", err)
		}

		var act orchestrator.Action[*repo.Repo] = func(ctx context.Context, r *repo.Repo, payload []string) (runbatch.Results, error) {
			return fn(ctxlog.With(ctx, "repo", r.Name()), rn, r, payload)
		}

		outcomes, err := orchestrator.RunOnAll(ctx, o, act, repos, srpms...)
		if err != nil {
			return cmdstate.Fail(ctx, "could not start", err)
		}

		return report(ctx, cmd, outcomes)
	}
}

// loadSettings reads the settings files and applies flag overrides and defaults.
func loadSettings(ctx context.Context, cmd *cli.Command) (*settings.Settings, error) {
	s, err := settings.Load(ctx, cmd.String(configFlag))
	if err != nil {
		return nil, err
	}

	override := func(dst *string, flag string) {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}

	override(&s.Server, serverFlag)
	override(&s.User, userFlag)
	override(&s.Dists, distsFlag)
	override(&s.Subdir, subdirFlag)
	override(&s.Topdir, topdirFlag)
	override(&s.SignKey, signKeyFlag)

	if cmd.IsSet(subdirFlag) && !cmd.IsSet(topdirFlag) {
		s.Topdir = ""
	}

	if cmd.IsSet(timeoutFlag) {
		if s.Timeout, err = plan.ParseSeconds(cmd.String(timeoutFlag)); err != nil {
			return nil, err
		}
	}

	if err := s.Complete(ctx, cmdstate.Memo(ctx)); err != nil {
		return nil, err
	}

	ctxlog.Debug(ctx, "settings", "files", s.Files, "server", s.Server, "user", s.User, "topdir", s.Topdir, "dists", s.Dists)

	return s, nil
}

func newOrchestrator(ctx context.Context, cmd *cli.Command) (*orchestrator.Orchestrator, *repo.Runner, error) {
	deadline, err := plan.ParseSeconds(cmd.String(deadlineFlag))
	if err != nil {
		return nil, nil, err
	}

	settle, err := seconds(cmd.String(settleFlag))
	if err != nil {
		return nil, nil, err
	}

	wait, err := runbatch.ParseWaitPolicy(cmd.String(cmdstate.WaitFlag))
	if err != nil {
		return nil, nil, err
	}

	rn := repo.NewRunner(&runbatch.BatchRunner{}, cmdstate.Memo(ctx))
	rn.Wait = wait

	return &orchestrator.Orchestrator{
		SettleDelay: settle,
		Deadline:    deadline,
		Prepare:     rn.Prepare,
	}, rn, nil
}

// seconds is ParseSeconds, except that zero disables the settle delay.
func seconds(s string) (time.Duration, error) {
	d, err := plan.ParseSeconds(s)
	if err != nil {
		return 0, err
	}

	if d == 0 {
		return -1, nil
	}

	return d, nil
}

func report(ctx context.Context, cmd *cli.Command, outcomes []orchestrator.TargetResult[*repo.Repo]) error {
	var failed bool

	for _, o := range outcomes {
		rctx := ctxlog.With(ctx, "repo", o.Target.Name())

		if err := cmdstate.WriteResults(cmd, o.Results); err != nil {
			return cmdstate.Fail(rctx, "could not display results", err)
		}

		if o.Late {
			ctxlog.Warn(rctx, "repository finished after the deadline", "finished", o.FinishedAt.Format(time.TimeOnly))
		}

		if o.Err != nil {
			failed = true

			ctxlog.Error(rctx, "repository failed", "error", o.Err)
		}
	}

	if failed {
		return cli.Exit(cmdstate.CliExitStr, 1)
	}

	return nil
}
