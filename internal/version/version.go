// Package version reports the build the server and CLI were compiled from.
//
//nolint:revive
package version

import (
	"runtime/debug"
	"sync"
)

var (
	// Version can be overridden by ldflags at build time.
	Version = "dev"
	// CommitHash can be overridden by ldflags at build time.
	CommitHash = ""
	// BuildTime can be overridden by ldflags at build time.
	BuildTime = ""
)

// Info describes one build. It is served on /version and printed by the binaries.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

var (
	once  sync.Once
	build Info
)

// Current returns the build info, falling back to the VCS stamp embedded by the Go
// toolchain when ldflags did not set it.
func Current() Info {
	once.Do(func() {
		build = Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
		if build.Commit != "" {
			return
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			build = fromSettings(build, bi.Settings)
		}
	})
	return build
}

func fromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			info.Commit = setting.Value
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = setting.Value
			}
		}
	}
	return info
}

// ShortCommit is the first seven characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	return i.Version + " (" + i.ShortCommit() + ")"
}

// GetInfo returns the formatted version string.
func GetInfo() string {
	return Current().String()
}
