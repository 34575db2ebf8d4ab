// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/spf13/afero"
)

var (
	// ErrBuildFailed is returned by Deploy when a build did not succeed.
	ErrBuildFailed = errors.New("build failed")
	// ErrNoPackages is returned by Deploy when mock left no packages behind.
	ErrNoPackages = errors.New("no packages found")
)

// FsFactory returns the filesystem searched for built packages. Tests replace it.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// queryArch returns the architecture recorded in an rpm header.
var queryArch = func(ctx context.Context, rpmPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "rpm", "-qp", "--qf", "%{arch}", rpmPath).Output()
	if err != nil {
		return "", fmt.Errorf("rpm -qp %s: %w", rpmPath, err)
	}

	return strings.TrimSpace(string(out)), nil
}

// Runner executes repository commands through a BatchRunner.
type Runner struct {
	Batch *runbatch.BatchRunner
	Memo  *memo.Table
	Wait  runbatch.WaitPolicy // Applied to build and copy batches.
}

// NewRunner returns a Runner that shares tbl for package metadata lookups.
func NewRunner(batch *runbatch.BatchRunner, tbl *memo.Table) *Runner {
	if batch == nil {
		batch = &runbatch.BatchRunner{}
	}

	if tbl == nil {
		tbl = memo.New()
	}

	return &Runner{Batch: batch, Memo: tbl, Wait: runbatch.WaitNone}
}

// IsNoarch reports whether srpm builds an architecture independent package.
// The answer is memoized per path.
func (rn *Runner) IsNoarch(ctx context.Context, srpm string) (bool, error) {
	return memo.Get(ctx, rn.Memo, "noarch:"+srpm, func(ctx context.Context) (bool, error) {
		arch, err := queryArch(ctx, srpm)
		if err != nil {
			return false, err
		}

		ctxlog.Debug(ctx, "queried package architecture", "srpm", srpm, "arch", arch)

		return arch == "noarch", nil
	})
}

// Prepare warms the memo table for every srpm so that concurrent actions share one lookup.
func (rn *Runner) Prepare(ctx context.Context, srpms []string) error {
	var errs []error

	for _, s := range srpms {
		if _, err := rn.IsNoarch(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Init creates the repository directories.
func (rn *Runner) Init(ctx context.Context, r *Repo) (runbatch.Results, error) {
	return rn.Batch.Run(ctx, r.InitOps(), runbatch.WaitNone)
}

// Update links noarch packages across architectures, then refreshes metadata in every rpm directory.
func (rn *Runner) Update(ctx context.Context, r *Repo) (runbatch.Results, error) {
	var all runbatch.Results

	if ops := r.SymlinkOps(); len(ops) > 0 {
		res, err := rn.Batch.Run(ctx, ops, runbatch.WaitNone)
		all = append(all, res...)

		if err != nil {
			return all, err
		}
	}

	res, err := rn.Batch.Run(ctx, r.UpdateOps(), runbatch.WaitNone)

	return append(all, res...), err
}

// Build rebuilds srpm for each applicable dist in parallel.
func (rn *Runner) Build(ctx context.Context, r *Repo, srpm string) (runbatch.Results, error) {
	noarch, err := rn.IsNoarch(ctx, srpm)
	if err != nil {
		return nil, err
	}

	quiet := !ctxlog.Logger(ctx).Enabled(ctx, slog.LevelInfo)

	return rn.Batch.Run(ctx, r.BuildOps(srpm, noarch, quiet), rn.Wait)
}

// Deploy builds srpm, signs and copies the packages into the repository, then updates it.
func (rn *Runner) Deploy(ctx context.Context, r *Repo, srpm string) (runbatch.Results, error) {
	all, err := rn.Build(ctx, r, srpm)
	if err != nil || all.HasError() {
		return all, errors.Join(ErrBuildFailed, err)
	}

	noarch, err := rn.IsNoarch(ctx, srpm)
	if err != nil {
		return all, err
	}

	uploads, binaries, err := rn.collect(r, noarch)
	if err != nil {
		return all, err
	}

	if r.SignKey != "" && len(binaries) > 0 {
		res, err := rn.Batch.Run(ctx, []runbatch.Operation{r.SignOp(binaries)}, runbatch.WaitNone)
		all = append(all, res...)

		if err != nil {
			return all, err
		}
	}

	res, err := rn.Batch.Run(ctx, r.CopyOps(uploads), rn.Wait)
	all = append(all, res...)

	if err != nil {
		return all, err
	}

	res, err = rn.Update(ctx, r)

	return append(all, res...), err
}

// collect finds what mock built for each dist and where it belongs in the repository.
func (rn *Runner) collect(r *Repo, noarch bool) ([]Upload, []string, error) {
	fs := FsFactory()

	var (
		uploads  []Upload
		binaries []string
	)

	for _, d := range r.DistsFor(noarch) {
		dir := d.ResultDir()

		srpms, err := afero.Glob(fs, filepath.Join(dir, "*.src.rpm"))
		if err != nil {
			return nil, nil, err
		}

		if len(srpms) == 0 {
			return nil, nil, fmt.Errorf("%w: no src.rpm in %s", ErrNoPackages, dir)
		}

		uploads = append(uploads, Upload{Src: srpms[0], Dst: path.Join(r.DestDir(), "sources")})

		rpms, err := afero.Glob(fs, filepath.Join(dir, "*.rpm"))
		if err != nil {
			return nil, nil, err
		}

		for _, p := range rpms {
			if strings.HasSuffix(p, ".src.rpm") {
				continue
			}

			uploads = append(uploads, Upload{Src: p, Dst: path.Join(r.DestDir(), d.Arch)})
			binaries = append(binaries, p)
		}
	}

	return uploads, binaries, nil
}
