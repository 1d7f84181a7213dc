// Package buildinfo exposes compile-time metadata for the launcher binary.
package buildinfo

import "fmt"

// The following variables are overridden via ldflags during release builds.
// Defaults cover local development builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// Banner returns the startup line printed before any command runs, so bug
// reports identify the exact build.
func Banner() string {
	return fmt.Sprintf("ISBoxer EVE Launcher Version: %s, Commit: %s, BuiltAt: %s",
		Version, Commit, BuildDate)
}
