/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of paraspace.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/paraspace/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the VCS revision, set at build time.
var Commit = "unknown"

// String describes the build for `paraspace version`.
func String() string {
	return fmt.Sprintf("paraspace %s (commit %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
