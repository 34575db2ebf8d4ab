// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package target describes where a command runs and adapts command strings
// so that they run there.
//
// A target whose host is empty or starts with "localhost" is local: the command
// runs through the platform shell in the target's working directory. Any other
// host is remote: the command is wrapped in an ssh invocation that changes into
// the working directory on the far side, and the local process is spawned in
// the caller's current directory.
package target

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/mitchellh/go-homedir"
)

const (
	// LocalHost is the host name used for the local machine.
	LocalHost = "localhost"
	// ConnectTimeoutSeconds is passed to ssh as ConnectTimeout.
	ConnectTimeoutSeconds = 5

	goosWindows          = "windows"
	commandSwitchWindows = "/C"
	commandSwitchUnix    = "-c"
	binSh                = "/bin/sh"
	winSystemRootEnv     = "SystemRoot"
)

// Target is a place to run commands: a host, the acting user and a working directory.
type Target struct {
	Host    string `yaml:"host"    hcl:"host,optional"`
	User    string `yaml:"user"    hcl:"user,optional"`
	Workdir string `yaml:"workdir" hcl:"workdir,optional"`
}

// Invocation is a command adapted to a target and ready to spawn.
type Invocation struct {
	Argv []string // Argv[0] is the shell executable.
	Dir  string   // Directory to spawn in, empty means the caller's current directory.
}

// Local returns a local target rooted at workdir.
func Local(workdir string) Target {
	return Target{Host: LocalHost, Workdir: workdir}
}

// IsLocal reports whether host names the local machine: it equals or starts
// with localhost. The empty host of a zero Target is also local.
func IsLocal(host string) bool {
	return host == "" || strings.HasPrefix(host, LocalHost)
}

// IsLocal reports whether the target is the local machine.
func (t Target) IsLocal() bool {
	return IsLocal(t.Host)
}

// String returns user@host:workdir, omitting empty parts.
func (t Target) String() string {
	sb := strings.Builder{}

	if t.User != "" {
		sb.WriteString(t.User)
		sb.WriteString("@")
	}

	host := t.Host
	if host == "" {
		host = LocalHost
	}

	sb.WriteString(host)

	if t.Workdir != "" {
		sb.WriteString(":")
		sb.WriteString(t.Workdir)
	}

	return sb.String()
}

// WithDefaultUser returns a copy of t with User set to user when it is empty.
func (t Target) WithDefaultUser(user string) Target {
	if t.User == "" {
		t.User = user
	}

	return t
}

// Wrap returns the command line that runs command on the target.
// Local targets get the command back unchanged.
func (t Target) Wrap(command string) string {
	if t.IsLocal() {
		return command
	}

	script := command
	if t.Workdir != "" {
		script = fmt.Sprintf("cd %s && %s", t.Workdir, command)
	}

	dest := t.Host
	if t.User != "" {
		dest = t.User + "@" + t.Host
	}

	return fmt.Sprintf("ssh -o ConnectTimeout=%d %s %s", ConnectTimeoutSeconds, dest, quote(script))
}

// Adapt turns command into an Invocation for the target.
// It never fails: a bad host or directory surfaces when the process runs.
func (t Target) Adapt(ctx context.Context, command string) Invocation {
	inv := Invocation{
		Argv: shellArgv(t.Wrap(command)),
	}

	if t.IsLocal() {
		inv.Dir = expandHome(ctx, t.Workdir)
	}

	return inv
}

func expandHome(ctx context.Context, dir string) string {
	if dir == "" {
		return ""
	}

	expanded, err := homedir.Expand(dir)
	if err != nil {
		ctxlog.Debug(ctx, "could not expand home directory", "workdir", dir, "error", err)
		return dir
	}

	return expanded
}

// quote wraps s in single quotes for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellArgv(line string) []string {
	if runtime.GOOS == goosWindows {
		systemRoot := os.Getenv(winSystemRootEnv)
		if systemRoot == "" {
			systemRoot = `C:\Windows`
		}

		return []string{systemRoot + `\System32\cmd.exe`, commandSwitchWindows, line}
	}

	return []string{binSh, commandSwitchUnix, line}
}
