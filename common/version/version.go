// Package version holds build metadata stamped in with -ldflags, falling
// back to what the Go toolchain embedded in the binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Build describes the running binary. It is reported by `kin version` and
// embedded in the health and status payloads.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current returns the stamped metadata, filling unstamped fields from the
// module build info.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = fromBuildInfo(b, info)
	}
	return b
}

func fromBuildInfo(b Build, info *debug.BuildInfo) Build {
	if strings.HasSuffix(b.Version, "-dev") {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			b.Version = v
		}
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" && s.Value != "" {
				b.Commit = s.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			}
		case "vcs.time":
			if b.BuildTime == "unknown" && s.Value != "" {
				b.BuildTime = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// String renders b on one line.
func (b Build) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "+dirty"
	}
	return "kin " + b.Version + " (" + commit + ", " + b.GoVersion + ") built at " + b.BuildTime
}

// Info returns Current as one line.
func Info() string {
	return Current().String()
}
