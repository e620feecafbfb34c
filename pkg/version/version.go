// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

// Build metadata. Release builds override these with
// -ldflags "-X github.com/Sumatoshi-tech/topfew/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the metadata the way the version command prints it.
func String() string {
	return fmt.Sprintf("topfew %s (commit: %s, built: %s)", Version, Commit, Date)
}
