// SPDX-License-Identifier:Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	version   = ""   // Filled out during release cutting
	gitCommit string // Provided by ldflags during build
	gitBranch string // Provided by ldflags during build
)

// String returns a human-readable version string.
func String() string {
	hasVersion := version != ""
	hasBuildInfo := CommitHash() != ""

	switch {
	case hasVersion && hasBuildInfo:
		return fmt.Sprintf("version %s (commit %s, branch %s)", version, CommitHash(), gitBranch)
	case !hasVersion && hasBuildInfo:
		return fmt.Sprintf("(commit %s, branch %s)", CommitHash(), gitBranch)
	case hasVersion && !hasBuildInfo:
		return fmt.Sprintf("version %s (no build information)", version)
	default:
		return "(no version or build info)"
	}
}

// Version returns the version string.
func Version() string { return version }

// CommitHash returns the commit hash at which the binary was built. When the
// build did not inject one it falls back to the revision recorded by the Go
// toolchain, if any.
func CommitHash() string {
	if gitCommit != "" {
		return gitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

// Branch returns the branch at which the binary was built.
func Branch() string { return gitBranch }

// GoString returns the version of the Go toolchain that built the binary.
func GoString() string { return runtime.Version() }
