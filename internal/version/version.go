// Package version holds build metadata, set with -ldflags at release time:
//
//	-X github.com/banshee-data/pathview/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	// Version is the pathview release, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and logs.
func String() string {
	return fmt.Sprintf("pathview %s (%s, built %s)", Version, GitSHA, BuildTime)
}
