// Package cliutil holds the process-boundary helpers shared by the zeka
// binaries.
package cliutil

import (
	"fmt"
	"os"
)

// ExitError prints err and exits with status 1.
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitCode prints err and exits with the given status, used where the exit
// code is part of the CLI contract (2 for rubric schema failures, 3 for
// duplicate or malformed checks).
func ExitCode(err error, code int) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(code)
}
