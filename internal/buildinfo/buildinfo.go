// Package buildinfo exposes version metadata stamped at link time via
// -ldflags "-X fieldops/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	BuiltAt string `json:"builtAt,omitempty"`
}

func Get() Info {
	return Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
}
