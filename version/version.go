// Package version reports build metadata, combining -ldflags overrides with
// whatever the Go toolchain stamped into the binary.
package version

import "runtime/debug"

// Overridable at build time with -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "none"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

func Get() Info {
	out := Info{
		Version: Version,
		Commit:  Commit,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}
