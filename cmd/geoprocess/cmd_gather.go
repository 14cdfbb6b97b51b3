package main

import (
	"encoding/json"
	"fmt"

	"github.com/forestsim/go-forestsim-geoprocess/operations/gather"
	"github.com/spf13/cobra"
)

func newGatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gather <dir>...",
		Short: "List the datasets in one or more directories, in processing order, as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx := cmd.Context()

			cfg, err := resolveConfig(cmd)

			if err != nil {
				return err
			}

			opts := &gather.GatherDatasetsOptions{
				Extension:   cfg.Extension,
				Fingerprint: true,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())

			for _, dir := range args {

				datasets, err := gather.GatherDatasetsInDirectory(ctx, dir, opts)

				if err != nil {
					return fmt.Errorf("Failed to gather datasets in %s, %w", dir, err)
				}

				for _, d := range datasets {

					err := enc.Encode(d)

					if err != nil {
						return fmt.Errorf("Failed to encode %s, %w", d.Key, err)
					}
				}
			}

			return nil
		},
	}
}
