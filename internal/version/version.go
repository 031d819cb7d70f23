// Package version holds build metadata for the vbot binary.
package version

// Stamped by the release build via -ldflags -X; defaults cover go run.
//
//nolint:revive
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
