// Package version reports build information for redispool.
//
// The values are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/bdrosen96/aioredis/version.Version=1.0.0 \
//	    -X github.com/bdrosen96/aioredis/version.GitCommit=$(git rev-parse --short HEAD)"
//
// A binary built without ldflags falls back to the module version recorded
// by `go install`, or "dev".
package version

import (
	"runtime"
	"runtime/debug"
)

// Version is the software version.
var Version = "dev"

// GitCommit is the short commit hash.
var GitCommit = ""

// BuildTime is when the binary was built, RFC 3339.
var BuildTime = ""

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = v
		}
	}
}

// Full returns the version with commit and build time if available.
func Full() string {
	v := Version
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}

// Runtime returns the Go version and platform the binary was built for.
func Runtime() string {
	return runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}
