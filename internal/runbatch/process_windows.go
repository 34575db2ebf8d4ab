// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build windows

package runbatch

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

// terminateProcess kills outright, Windows has no SIGTERM for console children.
func terminateProcess(ps *os.Process) error {
	return ps.Kill()
}

func killProcess(ps *os.Process) error {
	return ps.Kill()
}
