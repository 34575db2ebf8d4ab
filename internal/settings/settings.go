// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package settings reads the site and user configuration for repository commands.
//
// Files are YAML and are read in order, later files overriding earlier ones:
//
//	/etc/myreporc
//	/etc/myrepo.d/*.conf (sorted)
//	$MYREPORC, or ~/.myreporc when unset
//
// Missing files are skipped. Values left empty after loading are filled from
// the local machine by Complete.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/environ"
	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/matt-FFFFFF/myrepo/internal/repo"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

const (
	// SystemFile is read first.
	SystemFile = "/etc/myreporc"
	// DropInGlob matches files read after SystemFile.
	DropInGlob = "/etc/myrepo.d/*.conf"
	// UserFile is read last unless EnvVar is set.
	UserFile = "~/.myreporc"
	// EnvVar names a file that replaces UserFile.
	EnvVar = "MYREPORC"

	// DefaultSubdir is the directory under ~/public_html that holds repositories.
	DefaultSubdir = "yum"
	// DefaultLocalTimeout applies when the server is this machine.
	DefaultLocalTimeout = 300 * time.Second
	// DefaultRemoteTimeout applies when the server is reached over ssh.
	DefaultRemoteTimeout = 600 * time.Second
)

var (
	// ErrReadSettings is returned when a settings file exists but cannot be read.
	ErrReadSettings = errors.New("could not read settings")
	// ErrDecodeSettings is returned when a settings file is not valid.
	ErrDecodeSettings = errors.New("could not decode settings")
)

// FsFactory returns the filesystem settings are read from. Tests replace it.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// getenv is a variable so tests can stub it.
var getenv = os.Getenv

// Settings are the values shared by every repository command.
type Settings struct {
	Server  string        `yaml:"server"`
	User    string        `yaml:"user"`
	Subdir  string        `yaml:"subdir"`
	Topdir  string        `yaml:"topdir"`
	SignKey string        `yaml:"signkey"`
	Dists   string        `yaml:"dists"`
	Timeout time.Duration `yaml:"-"`

	// Files lists the files that were read, in order.
	Files []string `yaml:"-"`
}

type fileSettings struct {
	Server  string `yaml:"server"`
	User    string `yaml:"user"`
	Subdir  string `yaml:"subdir"`
	Topdir  string `yaml:"topdir"`
	SignKey string `yaml:"signkey"`
	Dists   string `yaml:"dists"`
	Timeout int    `yaml:"timeout"` // seconds
}

// Paths returns the files Load reads, in order. Only files that exist are returned.
func Paths(fs afero.Fs) []string {
	var paths []string

	if ok, _ := afero.Exists(fs, SystemFile); ok {
		paths = append(paths, SystemFile)
	}

	if dropIns, err := afero.Glob(fs, DropInGlob); err == nil {
		sort.Strings(dropIns)
		paths = append(paths, dropIns...)
	}

	user := getenv(EnvVar)
	if user == "" {
		user = UserFile
	}

	if expanded, err := homedir.Expand(user); err == nil {
		user = expanded
	}

	if ok, _ := afero.Exists(fs, user); ok {
		paths = append(paths, user)
	}

	return paths
}

// Load reads the configuration files. When explicit is not empty only that
// file is read and it must exist.
func Load(ctx context.Context, explicit string) (*Settings, error) {
	fs := FsFactory()

	paths := Paths(fs)
	if explicit != "" {
		if expanded, err := homedir.Expand(explicit); err == nil {
			explicit = expanded
		}

		paths = []string{explicit}
	}

	s := &Settings{}

	var result error

	for _, p := range paths {
		ctxlog.Debug(ctx, "reading settings", "path", p)

		content, err := afero.ReadFile(fs, p)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: %s: %w", ErrReadSettings, p, err))
			continue
		}

		var fset fileSettings
		if err := yaml.UnmarshalWithOptions(content, &fset, yaml.DisallowUnknownField()); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("%w: %s: %s", ErrDecodeSettings, p, yaml.FormatError(err, false, true)))

			continue
		}

		s.merge(fset)
		s.Files = append(s.Files, p)
	}

	return s, result
}

func (s *Settings) merge(f fileSettings) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	override(&s.Server, f.Server)
	override(&s.User, f.User)
	override(&s.Subdir, f.Subdir)
	override(&s.Topdir, f.Topdir)
	override(&s.SignKey, f.SignKey)
	override(&s.Dists, f.Dists)

	if f.Timeout > 0 {
		s.Timeout = time.Duration(f.Timeout) * time.Second
	}
}

// Complete fills empty values: server from the host name, user from the
// current user, topdir from subdir, and a timeout that depends on whether the
// server is local.
func (s *Settings) Complete(ctx context.Context, tbl *memo.Table) error {
	if s.Server == "" {
		h, err := environ.Hostname(ctx, tbl)
		if err != nil {
			return err
		}

		s.Server = h
	}

	if s.User == "" {
		u, err := environ.Username(ctx, tbl)
		if err != nil {
			return err
		}

		s.User = u
	}

	if s.Subdir == "" {
		s.Subdir = DefaultSubdir
	}

	if s.Topdir == "" {
		s.Topdir = path.Join("~/public_html", s.Subdir)
	}

	if s.Timeout <= 0 {
		s.Timeout = DefaultRemoteTimeout
		if s.IsLocal(ctx, tbl) {
			s.Timeout = DefaultLocalTimeout
		}
	}

	return nil
}

// IsLocal reports whether Server names this machine.
func (s *Settings) IsLocal(ctx context.Context, tbl *memo.Table) bool {
	if target.IsLocal(s.Server) {
		return true
	}

	h, err := environ.Hostname(ctx, tbl)
	if err != nil {
		return false
	}

	short := func(n string) string {
		n, _, _ = strings.Cut(n, ".")
		return n
	}

	return s.Server == h || short(s.Server) == short(h)
}

// Repos builds one repository per distribution release named in Dists.
func (s *Settings) Repos() ([]*repo.Repo, error) {
	dists, err := repo.ParseDists(s.Dists)
	if err != nil {
		return nil, err
	}

	return repo.FromDists(repo.Repo{
		Server:  s.Server,
		User:    s.User,
		Topdir:  s.Topdir,
		SignKey: s.SignKey,
		Timeout: s.Timeout,
	}, dists), nil
}
