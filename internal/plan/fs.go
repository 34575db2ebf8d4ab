// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package plan

import "github.com/spf13/afero"

// FsFactory returns the filesystem plan files are read from. Tests replace it.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}
