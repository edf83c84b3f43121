package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/trellisml/trellis/internal/status"
)

// outputJSON outputs data as pretty-printed JSON to stdout.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError outputs an error as JSON to stderr and exits with code 1.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
	os.Exit(1)
}

// fail reports err in the selected output format and exits with code 1. The
// canonical status code rides along so scripts can branch on it.
func fail(err error) {
	if jsonOutput {
		outputJSONError(err, status.CodeOf(err).String())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// failf is fail for errors built at the call site.
func failf(format string, args ...interface{}) {
	fail(fmt.Errorf(format, args...))
}
