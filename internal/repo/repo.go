// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package repo builds the shell operations that maintain a yum repository:
// creating its directories, refreshing metadata with createrepo, rebuilding
// source packages with mock and copying the results into place.
package repo

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/mitchellh/go-homedir"
)

// Repo is a yum repository for one distribution release, possibly spanning several architectures.
type Repo struct {
	Server  string        // Host that serves the repository.
	User    string        // Owner of the repository on Server.
	Topdir  string        // Repository root on Server, e.g. ~/public_html/yum.
	SignKey string        // GPG key id used to sign binary packages, empty disables signing.
	Timeout time.Duration // Per operation timeout.
	Dists   []Dist        // Same name and version, one per architecture.
}

// Name returns distname-version-hostname-user.
func (r *Repo) Name() string {
	host, _, _ := strings.Cut(r.Server, ".")
	return fmt.Sprintf("%s-%s-%s-%s", r.distName(), r.distVersion(), host, r.User)
}

// String implements fmt.Stringer.
func (r *Repo) String() string {
	return r.Name()
}

func (r *Repo) distName() string {
	if len(r.Dists) == 0 {
		return ""
	}

	return r.Dists[0].Name
}

func (r *Repo) distVersion() string {
	if len(r.Dists) == 0 {
		return ""
	}

	return r.Dists[0].Version
}

// Archs returns the architectures in configuration order.
func (r *Repo) Archs() []string {
	archs := make([]string, 0, len(r.Dists))
	for _, d := range r.Dists {
		archs = append(archs, d.Arch)
	}

	return archs
}

// PrimaryArch is the first architecture; noarch packages are built only for it.
func (r *Repo) PrimaryArch() string {
	if len(r.Dists) == 0 {
		return ""
	}

	return r.Dists[0].Arch
}

// Target is the server and user the repository lives on, without a working directory.
func (r *Repo) Target() target.Target {
	return target.Target{Host: r.Server, User: r.User}
}

// DestDir is topdir/distname/version.
func (r *Repo) DestDir() string {
	return path.Join(r.Topdir, r.distName(), r.distVersion())
}

// RPMDirs returns the sources directory followed by one directory per architecture.
func (r *Repo) RPMDirs() []string {
	dirs := []string{path.Join(r.DestDir(), "sources")}
	for _, a := range r.Archs() {
		dirs = append(dirs, path.Join(r.DestDir(), a))
	}

	return dirs
}

// DistsFor returns the dists to build a package for: only the primary one for noarch packages.
func (r *Repo) DistsFor(noarch bool) []Dist {
	if noarch && len(r.Dists) > 0 {
		return r.Dists[:1]
	}

	return r.Dists
}

// CopyCmd copies src from the local machine into dst on the server.
func (r *Repo) CopyCmd(src, dst string) string {
	if target.IsLocal(r.Server) {
		if expanded, err := homedir.Expand(dst); err == nil {
			dst = expanded
		}

		return fmt.Sprintf("cp -a %s %s", src, dst)
	}

	return fmt.Sprintf("scp -p %s %s@%s:%s", src, r.User, r.Server, dst)
}

func (r *Repo) op(label, command string, tgt target.Target) runbatch.Operation {
	return runbatch.Operation{
		Label:         fmt.Sprintf("%s: %s", r.Name(), label),
		Command:       command,
		Target:        tgt,
		Timeout:       r.Timeout,
		StopOnFailure: true,
	}
}

// InitOps creates every rpm directory.
func (r *Repo) InitOps() []runbatch.Operation {
	return []runbatch.Operation{
		r.op("init", "mkdir -p "+strings.Join(r.RPMDirs(), " "), r.Target()),
	}
}

// SymlinkOps links the primary architecture's noarch packages into the other
// architecture directories. It returns nothing for single-arch repositories.
func (r *Repo) SymlinkOps() []runbatch.Operation {
	archs := r.Archs()
	if len(archs) < 2 {
		return nil
	}

	cmd := fmt.Sprintf("for d in %s; do (cd $d && ln -sf ../%s/*.noarch.rpm ./); done",
		strings.Join(archs[1:], " "), r.PrimaryArch())

	tgt := r.Target()
	tgt.Workdir = r.DestDir()

	return []runbatch.Operation{r.op("link noarch", cmd, tgt)}
}

const createrepoCmd = "test -d repodata" +
	" && createrepo --update --deltas --oldpackagedirs . --database ." +
	" || createrepo --deltas --oldpackagedirs . --database ."

// UpdateOps refreshes the metadata of every rpm directory.
func (r *Repo) UpdateOps() []runbatch.Operation {
	dirs := r.RPMDirs()
	ops := make([]runbatch.Operation, 0, len(dirs))

	for _, d := range dirs {
		tgt := r.Target()
		tgt.Workdir = d
		ops = append(ops, r.op("createrepo "+path.Base(d), createrepoCmd, tgt))
	}

	return ops
}

// BuildOps rebuilds srpm locally with mock, once per applicable dist.
func (r *Repo) BuildOps(srpm string, noarch, quiet bool) []runbatch.Operation {
	dists := r.DistsFor(noarch)
	ops := make([]runbatch.Operation, 0, len(dists))

	for _, d := range dists {
		ops = append(ops, r.op("build "+d.Label(), d.BuildCmd(srpm, quiet), target.Local("")))
	}

	return ops
}

// SignOp re-signs rpms locally with SignKey.
func (r *Repo) SignOp(rpms []string) runbatch.Operation {
	cmd := fmt.Sprintf(`rpm --resign --define "_signature gpg" --define "_gpg_name %s" %s`,
		r.SignKey, strings.Join(rpms, " "))

	return r.op("sign", cmd, target.Local(""))
}

// Upload is one package to copy into the repository.
type Upload struct {
	Src string
	Dst string
}

// CopyOps copies each upload from the local machine to the server.
func (r *Repo) CopyOps(uploads []Upload) []runbatch.Operation {
	ops := make([]runbatch.Operation, 0, len(uploads))

	for _, u := range uploads {
		ops = append(ops, r.op("copy "+path.Base(u.Src), r.CopyCmd(u.Src, u.Dst), target.Local("")))
	}

	return ops
}

// FromDists builds one Repo per distribution release found in dists.
func FromDists(base Repo, dists []Dist) []*Repo {
	groups := GroupDists(dists)
	repos := make([]*Repo, 0, len(groups))

	for _, g := range groups {
		r := base
		r.Dists = g
		repos = append(repos, &r)
	}

	return repos
}
