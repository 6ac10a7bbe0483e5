package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run a single cleanup pass out-of-band and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context())
		},
	}
}

func runCleanup(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	result, err := a.cleanup.Run(ctx)
	if err != nil {
		return fmt.Errorf("running cleanup pass: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
