package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const sockwireVersion = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show sockwire version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "sockwire version %s (%s/%s)\n",
				sockwireVersion, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
