// Package debug provides gated diagnostic output for trellis.
//
// Debug logging is off unless TRELLIS_DEBUG is set in the environment or
// verbose mode is enabled with SetVerbose. Normal informational output can
// be suppressed with SetQuiet.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("TRELLIS_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug output is active.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output).
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes a debug line to stderr when debug output is active.
// A trailing newline is added if the format does not end with one.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// Printf writes to stdout when debug output is active.
func Printf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled.
// Use this for informational output that --quiet should suppress.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
