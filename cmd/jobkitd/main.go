// Command jobkitd runs job queue servers described by a YAML topology and
// exposes an admin HTTP API for enqueueing and inspecting jobs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jobkitd:", err)
		os.Exit(1)
	}
}
