// Package buildinfo carries build-time metadata injected via ldflags,
// kept separate from user configuration.
package buildinfo

import "fmt"

var (
	// Version holds the Git version tag from build.
	Version = "dev"
	// BuildDate is the time the binary was built.
	BuildDate = "unknown"
)

// String renders the version line shown by --version.
func String() string {
	return fmt.Sprintf("%s (built %s)", Version, BuildDate)
}
