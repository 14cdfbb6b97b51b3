package main

import (
	"fmt"

	"github.com/forestsim/go-forestsim-geoprocess/engine"
	"github.com/spf13/cobra"
)

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the registered engine schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			for _, s := range engine.Schemes() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}

			return nil
		},
	}
}
