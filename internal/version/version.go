package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Version and Commit are normally injected by the release build:
//
//	go build -ldflags="-X github.com/muurk/freeathome/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/freeathome/internal/version.Commit=abc123"
//
// Local builds fall back to the VCS stamp in the binary.
var (
	Version = ""
	Commit  = ""
)

func init() {
	var stamped, rev string
	if info, ok := debug.ReadBuildInfo(); ok {
		stamped, rev = fromBuildInfo(info)
	}
	Version = firstNonEmpty(Version, stamped, "dev-"+time.Now().Format("20060102-150405"))
	Commit = firstNonEmpty(Commit, rev, "unknown")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// fromBuildInfo turns vcs.* build settings into "dev-<commit date>" and a
// short revision, suffixed "-dirty" for modified trees.
func fromBuildInfo(info *debug.BuildInfo) (version, commit string) {
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; rev != "" {
		commit = rev[:min(len(rev), 7)]
		if settings["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}
	if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
		version = "dev-" + t.Format("20060102")
	}
	return version, commit
}

// Full is the version with its commit, as printed by "fah version".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent identifies this client to the SysAP, e.g.
// "freeathome/v1.2.0 (abc1234)".
func UserAgent() string {
	return fmt.Sprintf("freeathome/%s (%s)", Version, Commit)
}
