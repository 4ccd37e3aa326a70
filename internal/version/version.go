// Package version holds build metadata, set with -ldflags -X at build time.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version and logs.
func String() string {
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("ld2450 %s (%s, built %s)", Version, sha, BuildTime)
}
