package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// New returns the build info set by the linker, falling back to the VCS stamp of the binary for
// unset fields.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && i.CommitHash == "n/a":
			i.CommitHash = s.Value
		case s.Key == "vcs.time" && i.BuildDate == "<unknown>":
			i.BuildDate = s.Value
		}
	}
	return i
}

// String returns the build into as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
