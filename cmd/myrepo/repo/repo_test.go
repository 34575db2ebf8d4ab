// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matt-FFFFFF/myrepo/cmd/myrepo/cmdstate"
	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/settings"
	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// withRepoFlags runs fn as the action of a command carrying RepoCmd's flags.
func withRepoFlags(t *testing.T, fn func(ctx context.Context, cmd *cli.Command) error, args ...string) {
	t.Helper()

	cmd := &cli.Command{
		Name:   "repo",
		Flags:  repoFlags(),
		Action: fn,
	}

	ctx := cmdstate.WithMemo(context.Background(), memo.New())
	require.NoError(t, cmd.Run(ctx, append([]string{"repo"}, args...)))
}

func TestLoadSettings_FlagsOverrideFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/site.rc", []byte("server: yum.example.com\nuser: repo\ndists: fedora-14-x86_64\ntimeout: 30\n"), 0o644))

	stubs := gostub.Stub(&settings.FsFactory, func() afero.Fs { return fs })
	defer stubs.Reset()

	var s *settings.Settings

	withRepoFlags(t, func(ctx context.Context, cmd *cli.Command) error {
		var err error

		s, err = loadSettings(ctx, cmd)
		require.NoError(t, err)

		return nil
	}, "--config", "/site.rc", "--user", "builder", "--subdir", "rpms", "--timeout", "2m")

	require.NotNil(t, s)
	assert.Equal(t, "yum.example.com", s.Server)
	assert.Equal(t, "builder", s.User)
	assert.Equal(t, "~/public_html/rpms", s.Topdir)
	assert.Equal(t, 2*time.Minute, s.Timeout)

	repos, err := s.Repos()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "fedora-14-yum-builder", repos[0].Name())
}

func TestNewOrchestrator(t *testing.T) {
	withRepoFlags(t, func(ctx context.Context, cmd *cli.Command) error {
		o, rn, err := newOrchestrator(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, 90*time.Second, o.Deadline)
		assert.Equal(t, time.Duration(-1), o.SettleDelay, "zero disables the settle delay")
		assert.NotNil(t, o.Prepare)
		assert.Equal(t, runbatch.WaitMax, rn.Wait)

		return nil
	}, "--deadline", "90", "--settle", "0", "--wait", "max")
}

func TestEachPackage(t *testing.T) {
	_, err := eachPackage(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoPackages)

	var seen []string

	boom := errors.New("boom")

	res, err := eachPackage(context.Background(), []string{"a.src.rpm", "b.src.rpm", "c.src.rpm"},
		func(s string) (runbatch.Results, error) {
			seen = append(seen, s)
			if s == "b.src.rpm" {
				return runbatch.Results{{Label: s, ExitCode: 1}}, boom
			}

			return runbatch.Results{{Label: s}}, nil
		})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "b.src.rpm")
	assert.Equal(t, []string{"a.src.rpm", "b.src.rpm"}, seen)
	assert.Len(t, res, 2)
}
