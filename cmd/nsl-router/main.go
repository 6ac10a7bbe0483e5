// Command nsl-router runs the mesh routing directory control plane:
// identity registry, route store, activity tracker, cleanup controller,
// and private certificate authority, behind an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "nsl-router",
		Short: "Mesh routing directory control plane",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newCleanupCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
