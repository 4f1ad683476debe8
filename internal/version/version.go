// Package version carries the build metadata stamped into the oraclebench
// binary.
package version

import "fmt"

var (
	// Version is the semantic version of the oraclebench binary. Overridden
	// via -ldflags "-X".
	Version = "0.1.0"
	// Commit is the git commit hash injected at build time.
	Commit = "dev"
	// BuildDate is the build timestamp injected at build time.
	BuildDate = "unknown"
)

// Full returns the version string shown by `oraclebench version`.
func Full() string {
	return fmt.Sprintf("%s (commit:%s, built:%s)", Version, Commit, BuildDate)
}
