// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package run implements the run command, which executes plan files.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter/v2"
	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/environ"
	"github.com/matt-FFFFFF/myrepo/internal/plan"
	"github.com/matt-FFFFFF/myrepo/internal/progress"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/tui"
	"github.com/urfave/cli/v3"
)

const (
	fileFlag = "file"
	outFlag  = "out"
	tuiFlag  = "tui"
)

// ErrGetPlanFile is returned when a plan file cannot be fetched.
var ErrGetPlanFile = errors.New("failed to get plan file")

// RunCmd is the command that runs the batches defined in plan files.
var RunCmd = &cli.Command{
	Name:  "run",
	Usage: "Run the operations defined in one or more plan files",
	Description: `Run the operations defined in YAML (.yaml, .yml) or HCL (.hcl) plan files.
Each plan is one batch: every operation is started at once, the batch waits
according to its wait policy, then every result is collected in order.
Plans run one after another.

Plan file URLs use Hashicorp's go-getter syntax, which allows for fetching files from various sources.
See https://github.com/hashicorp/go-getter.`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    fileFlag,
			Aliases: []string{"f"},
			Usage: "URL of a plan file. Supports Hashicorp's go-getter syntax. " +
				"Specify multiple times to run multiple plans.",
		},
		&cli.StringFlag{
			Name:    cmdstate.WaitFlag,
			Aliases: []string{"w"},
			Usage:   "Override the wait policy of every plan: none, min, max or seconds.",
		},
		&cli.StringFlag{
			Name:      outFlag,
			Usage:     "Also write the results to this file as YAML",
			TakesFile: true,
			OnlyOnce:  true,
		},
		&cli.BoolFlag{
			Name:    tuiFlag,
			Aliases: []string{"t", "interactive"},
			Usage:   "Show live progress in a terminal user interface",
		},
		&cli.BoolFlag{
			Name:  cmdstate.DetailsFlag,
			Usage: "Include the duration of each operation in the output.",
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	ctx = ctxlog.With(ctx, "command", cmd.Name)

	urls := cmd.StringSlice(fileFlag)
	if len(urls) == 0 {
		ctxlog.Error(ctx, "Please specify at least one plan file using the --file or -f flag.")
		return cli.Exit(cmdstate.CliExitStr, 1)
	}

	tmpDir, err := os.MkdirTemp("", "myrepo-getter-*")
	if err != nil {
		return cmdstate.Fail(ctx, "could not create a temporary directory", err)
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	paths := make([]string, 0, len(urls))

	for i, u := range urls {
		p, err := getURL(ctx, u, filepath.Join(tmpDir, fmt.Sprintf("%d", i)))
		if err != nil {
			return cmdstate.Fail(ctx, "could not fetch plan file", err)
		}

		paths = append(paths, p)
	}

	plans, err := plan.LoadAll(ctx, paths)
	if err != nil {
		return cmdstate.Fail(ctx, "could not load plans", err)
	}

	user, err := environ.Username(ctx, cmdstate.Memo(ctx))
	if err != nil {
		return cmdstate.Fail(ctx, "could not determine the default user", err)
	}

	for _, p := range plans {
		p.SetDefaultUser(user)
	}

	if w := cmd.String(cmdstate.WaitFlag); w != "" {
		policy, err := runbatch.ParseWaitPolicy(w)
		if err != nil {
			return cmdstate.Fail(ctx, "invalid wait policy", err)
		}

		for _, p := range plans {
			p.Wait = policy
		}
	}

	var (
		res    runbatch.Results
		runErr error
	)

	if cmd.Bool(tuiFlag) {
		buf := new(bytes.Buffer)
		tuiCtx := ctxlog.NewForTUI(ctx, buf)

		res, runErr = tui.NewRunner(tuiCtx).Run(tuiCtx, func(ctx context.Context, r progress.Reporter) (runbatch.Results, error) {
			return runPlans(ctx, plans, r)
		})

		buf.WriteTo(cmd.Root().ErrWriter) //nolint:errcheck
	} else {
		res, runErr = runPlans(ctx, plans, nil)
	}

	if out := cmd.String(outFlag); out != "" {
		if err := writeYAML(out, res); err != nil {
			return cmdstate.Fail(ctx, "could not write results file", err)
		}

		ctxlog.Info(ctx, "results written", "path", out)
	}

	if err := cmdstate.WriteResults(cmd, res); err != nil {
		return cmdstate.Fail(ctx, "could not display results", err)
	}

	if runErr != nil {
		return cmdstate.Fail(ctx, "plan failed", runErr)
	}

	if res.HasError() {
		ctxlog.Warn(ctx, "some operations failed, see above for details")
	}

	return nil
}

// runPlans runs each plan as one batch, in order. A plan whose batch returns
// an error stops the remaining plans.
func runPlans(ctx context.Context, plans []*plan.Plan, reporter progress.Reporter) (runbatch.Results, error) {
	br := &runbatch.BatchRunner{Reporter: reporter}

	var all runbatch.Results

	for _, p := range plans {
		pctx := ctxlog.With(ctx, "plan", p.Name, "source", p.Source)
		ctxlog.Info(pctx, "running plan", "operations", len(p.Operations), "wait", p.Wait.String())

		res, err := br.Run(pctx, p.Operations, p.Wait)
		all = append(all, res...)

		if err != nil {
			return all, fmt.Errorf("%s: %w", p.Name, err)
		}
	}

	return all, nil
}

func writeYAML(path string, res runbatch.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	return res.WriteYAML(f)
}

// getURL fetches the plan file at url into dst and returns the local path of the file.
func getURL(ctx context.Context, url, dst string) (string, error) {
	if url == "" {
		return "", ErrGetPlanFile
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Join(ErrGetPlanFile, err)
	}

	client := getter.Client{
		DisableSymlinks: true,
	}

	req := &getter.Request{
		Src:     url,
		Dst:     dst,
		Pwd:     wd,
		GetMode: getter.ModeDir,
	}

	var fileName string
	// Remote sources are fetched as a directory and the file picked from it.
	// https://github.com/hashicorp/go-getter/issues/98
	if ok, err := getter.Detect(req, &getter.FileGetter{}); !ok || err != nil {
		if err != nil {
			return "", errors.Join(ErrGetPlanFile, err)
		}

		var newURL string

		newURL, fileName = splitFileNameFromGetterURL(url)
		if newURL == "" || fileName == "" {
			return "", fmt.Errorf("%w: invalid URL format: %s", ErrGetPlanFile, url)
		}

		req.Src = newURL
	}

	if fileName == "" {
		req.Src = filepath.Dir(url)
		fileName = filepath.Base(url)
	}

	ctxlog.Debug(ctx, "fetching plan file", "src", req.Src, "file", fileName)

	res, err := client.Get(ctx, req)
	if err != nil {
		return "", errors.Join(ErrGetPlanFile, err)
	}

	p := filepath.Join(res.Dst, fileName)
	if _, err := os.Stat(p); err != nil {
		return "", errors.Join(ErrGetPlanFile, err)
	}

	return p, nil
}

const (
	goGetterPathSeparator = "//"
	goGetterRefSeparator  = "?"
	minimumGetterParts    = 3 // scheme, host and path
)

// splitFileNameFromGetterURL splits a go-getter URL into the directory URL and
// the file name, keeping any ref query on the directory URL.
func splitFileNameFromGetterURL(url string) (string, string) {
	var ref string

	parts := strings.Split(url, goGetterPathSeparator)
	if len(parts) < minimumGetterParts {
		return "", ""
	}

	last := parts[len(parts)-1]

	if before, after, found := strings.Cut(last, goGetterRefSeparator); found {
		ref = after
		last = before
	}

	if filepath.Clean(last) == filepath.Dir(last) {
		return "", ""
	}

	fileName := filepath.Base(last)
	parts[len(parts)-1] = filepath.Dir(last)

	if parts[len(parts)-1] == "." {
		parts = parts[:len(parts)-1]
	}

	newURL := strings.Join(parts, goGetterPathSeparator)

	if ref != "" {
		newURL += goGetterRefSeparator + ref
	}

	return newURL, fileName
}
