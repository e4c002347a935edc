// Package framer carries the remote helper program. The helper is a
// Python script injected through the bootstrap runpython command; once
// running it turns the single remote shell into a small process
// manager speaking the line protocol the conductor dispatches.
package framer

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed framer.py
var source string

// subMarker is replaced with per-session settings before upload.
const subMarker = "#{SUB}"

// MinimumPythonMajor and MinimumPythonMinor bound the remote
// interpreter the helper runs under.
const (
	MinimumPythonMajor = 3
	MinimumPythonMinor = 7
)

// Source renders the helper for one session. depth tags every frame
// the helper emits so nested conductors can route events; verbose
// turns on remote-side tracing to stderr.
func Source(depth int, verbose bool) string {
	sub := fmt.Sprintf("DEPTH=%d", depth)
	if verbose {
		sub += "\nVERBOSE=1"
	}
	return strings.Replace(source, subMarker, sub, 1)
}

// PythonOK reports whether a `python3 -V` banner names an interpreter
// the helper supports.
func PythonOK(version string) bool {
	var major, minor int
	if _, err := fmt.Sscanf(strings.TrimSpace(version), "Python %d.%d", &major, &minor); err != nil {
		return false
	}
	if major != MinimumPythonMajor {
		return major > MinimumPythonMajor
	}
	return minor >= MinimumPythonMinor
}
