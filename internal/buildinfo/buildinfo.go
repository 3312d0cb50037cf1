// Package buildinfo reports the version of the running blogmd binary.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version string such as "v1.2.0 (abc123 2026-01-02)".
// Without ldflags it falls back to the module version recorded by the Go toolchain.
func Summary() string {
	version := Version
	if version == "" {
		version = moduleVersion()
	}
	var extra string
	switch {
	case Commit != "" && Date != "":
		extra = Commit + " " + Date
	case Commit != "":
		extra = Commit
	case Date != "":
		extra = Date
	}
	if extra == "" {
		return version
	}
	return version + " (" + extra + ")"
}

func moduleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
