// Package internal contains the internal packages that
// make up the application.
package internal

import (
	"runtime/debug"
	"time"
)

var (
	// BuildRevision is the VCS revision the binary was built from.
	BuildRevision = "unknown"
	// BuildRevisionTime is the commit time of BuildRevision.
	BuildRevisionTime = time.Time{}
	// BuildModified indicates whether the working tree was dirty at build time.
	BuildModified = false
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			BuildRevision = setting.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err != nil {
				continue
			}
			BuildRevisionTime = t
		case "vcs.modified":
			BuildModified = setting.Value == "true"
		}
	}
}
