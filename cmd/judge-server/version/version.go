//go:generate sh -c "git describe --tags --always > version.txt"

// Package version reports the build version of the judge server
package version

import (
	"embed"
	"runtime/debug"
	"strings"
)

//go:embed version.*
var versions embed.FS

// Version is the content of version.txt when generated, otherwise the
// module version or vcs revision recorded by the go command
var Version = "unknown"

func init() {
	if b, err := versions.ReadFile("version.txt"); err == nil {
		Version = strings.TrimSpace(string(b))
		return
	}
	if v, ok := fromBuildInfo(); ok {
		Version = v
	}
}

func fromBuildInfo() (string, bool) {
	inf, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	if v := inf.Main.Version; v != "" && v != "(devel)" {
		return v, true
	}
	var rev, dirty string
	for _, s := range inf.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return "", false
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty, true
}
