// Package buildinfo holds application metadata, overridable at build time
// via ldflags, e.g.:
//
//	go build -ldflags "-X github.com/dotside-studios/airdrop-bridge/buildinfo.Version=1.0.0"
package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	// Name is the technical application name.
	Name = "airdrop-bridge"

	// DirName is the config directory name within user config paths.
	DirName = "airdrop-bridge"

	// DisplayName is the human-readable application name.
	DisplayName = "AirDrop Bridge"

	Description = "AirDrop-over-AWDL bridge for non-Apple receivers"

	// Version, Commit, and BuildTime are set via ldflags for releases.
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion returns the version string with optional commit info.
// Examples:
//   - "dev" (development build)
//   - "1.0.0" (release build)
//   - "1.0.0 (abc1234)" (release build with commit)
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// UserAgent returns a user agent string for HTTP requests.
// Example: "airdrop-bridge/1.0.0"
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}

// BuildInfo returns a multi-line string with full build information.
func BuildInfo() string {
	info := fmt.Sprintf("%s %s\n", Name, FullVersion())
	info += fmt.Sprintf("  %s\n", Description)
	info += fmt.Sprintf("  Go: %s\n", runtime.Version())
	info += fmt.Sprintf("  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		info += fmt.Sprintf("\n  Built: %s", BuildTime)
	}
	return info
}

// IsDev returns true if this is a development build.
func IsDev() bool {
	return Version == "dev"
}
