// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/exposure.report/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for `exposure version` and the serve
// startup log.
func String() string {
	return fmt.Sprintf("exposure %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
