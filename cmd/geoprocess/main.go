// geoprocess derives the aesthetics and habitat connectivity metrics for every dataset of one or more
// ForestSim experiments and appends them to per-experiment CSV files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "geoprocess",
		Short: "Derive landscape metrics for ForestSim experiments",
		Long: `geoprocess walks each experiment directory below --root, normalizes every dataset it
finds, measures its aesthetics (the area of young stands near roads) and habitat
connectivity (Moran's I of the young stand indicator) and appends both values to
aesthetics.csv and habitatConnectivity.csv in the experiment directory. Each run
appends one row per experiment.

Running geoprocess without a subcommand is the same as "geoprocess run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runProcess,
	}

	addConfigFlags(rootCmd)

	rootCmd.AddCommand(
		newRunCmd(),
		newGatherCmd(),
		newEnginesCmd(),
	)

	return rootCmd
}
