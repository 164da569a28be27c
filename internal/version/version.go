// Package version carries build metadata stamped with -ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders build metadata for program, e.g. "viva" or "viva-broker".
func String(program string) string {
	return program + " " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies viva to the credential broker.
func UserAgent() string {
	return "viva/" + Version
}
