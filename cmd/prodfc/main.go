// Command prodfc runs the streaming agent API server.
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
		Use:          "prodfc",
		Short:        "Streaming multi-agent API server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}
