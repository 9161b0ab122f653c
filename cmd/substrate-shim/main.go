// substrate-shim is the PATH-front binary installed in place of (or
// ahead of) real tools: every invocation re-execs the real binary and
// records a trace span, per spec.md §4.2. The shim itself does not
// consult the broker.
package main

import (
	"fmt"
	"os"

	"github.com/substrate-dev/substrate/internal/shimrun"
)

func main() {
	result, err := shimrun.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "substrate-shim: %v\n", err)
	}
	os.Exit(result.ExitCode)
}
