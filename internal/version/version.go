// Package version carries build metadata injected via -ldflags.
package version

import "fmt"

// Populated at build time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3 ..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line description suitable for logs and the
// version subcommand.
func String() string {
	return fmt.Sprintf("driftwood %s (commit %s, built %s)", Version, Commit, Date)
}
