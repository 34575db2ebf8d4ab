// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build !windows

package runbatch

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so that
// termination reaches the shell and everything it started.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(ps *os.Process) error {
	return signalGroup(ps, syscall.SIGTERM)
}

func killProcess(ps *os.Process) error {
	return signalGroup(ps, syscall.SIGKILL)
}

func signalGroup(ps *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-ps.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}

	if err != nil {
		return ps.Signal(sig)
	}

	return nil
}
