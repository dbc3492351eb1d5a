// Command rlctl is an operator CLI over a record layer's index admin
// surface: disabling/enabling indexes, driving an online build, scrubbing
// an index against its records, and checking breaker health.
package main

import (
	"fmt"
	"os"

	"github.com/fdbrl/recordlayer/health"
)

func main() {
	st, err := demoStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rlctl:", err)
		os.Exit(1)
	}
	r := &Runner{st: st, tr: health.New(health.Config{})}

	if err := newRootCmd(r).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rlctl:", err)
		os.Exit(1)
	}
}
