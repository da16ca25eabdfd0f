// Command wheelctl inspects and validates memory wheel layouts offline. It
// never creates a shared region, never forks, and never runs the
// producer/consumer protocol -- that is the excluded demo driver's job
// (see spec.md section 1 and SPEC_FULL.md section 4.G). wheelctl only does
// the arithmetic a caller would otherwise have to do by hand before
// sizing a real wheel.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wheelctl",
		Short:         "Inspect and validate memory wheel layouts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLayoutCmd())
	return root
}
