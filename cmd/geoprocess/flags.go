package main

import (
	"fmt"

	"github.com/forestsim/go-forestsim-geoprocess/config"
	"github.com/spf13/cobra"
)

func addConfigFlags(cmd *cobra.Command) {

	defaults := config.Default()

	flags := cmd.PersistentFlags()

	flags.String("config", "", "Path to a YAML config file. Flags override its values.")
	flags.String("root", defaults.Root, "Directory containing one subdirectory per experiment")
	flags.StringSlice("experiment", defaults.Experiments, "Experiment to process (repeatable)")
	flags.String("engine", defaults.EngineURI, "GIS engine URI, for example geos:// or arcpy://?python=python.exe")
	flags.String("reference", defaults.ReferenceLayer, "Reference (roads buffer) layer to clip against")
	flags.String("scratch", defaults.ScratchDir, "Scratch directory for clip output and working copies")
	flags.String("map-document", defaults.MapDocument, "Map document to clear after each dataset (arcpy engine only)")
	flags.Float64("threshold", defaults.DBHThreshold, "DBH below which a stand counts towards both metrics")
	flags.String("crs", defaults.CRS, "Coordinate reference system to assign to every dataset")
	flags.String("extension", defaults.Extension, "Extension of the datasets to process")
	flags.String("on-error", defaults.OnError, "What to do when a dataset fails: abort or skip")
	flags.Bool("working-copy", defaults.WorkingCopy, "Process scratch copies so input datasets are left untouched")
	flags.Bool("dry-run", defaults.DryRun, "Log what would be processed without running the engine or writing results")
	flags.String("log-level", defaults.Logging.Level, "Log level: debug, info, warn or error")
}

// resolveConfig loads the config file named by --config, if any, over the defaults and then applies
// any flags set explicitly on the command line.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {

	flags := cmd.Flags()

	cfg := config.Default()

	path, _ := flags.GetString("config")

	if path != "" {

		c, err := config.LoadFromFile(path)

		if err != nil {
			return nil, err
		}

		cfg = c
	}

	string_flags := map[string]*string{
		"root":         &cfg.Root,
		"engine":       &cfg.EngineURI,
		"reference":    &cfg.ReferenceLayer,
		"scratch":      &cfg.ScratchDir,
		"map-document": &cfg.MapDocument,
		"crs":          &cfg.CRS,
		"extension":    &cfg.Extension,
		"on-error":     &cfg.OnError,
		"log-level":    &cfg.Logging.Level,
	}

	for name, v := range string_flags {

		if !flags.Changed(name) {
			continue
		}

		str, err := flags.GetString(name)

		if err != nil {
			return nil, fmt.Errorf("Failed to read --%s flag, %w", name, err)
		}

		*v = str
	}

	bool_flags := map[string]*bool{
		"working-copy": &cfg.WorkingCopy,
		"dry-run":      &cfg.DryRun,
	}

	for name, v := range bool_flags {

		if !flags.Changed(name) {
			continue
		}

		b, err := flags.GetBool(name)

		if err != nil {
			return nil, fmt.Errorf("Failed to read --%s flag, %w", name, err)
		}

		*v = b
	}

	if flags.Changed("experiment") {

		experiments, err := flags.GetStringSlice("experiment")

		if err != nil {
			return nil, fmt.Errorf("Failed to read --experiment flag, %w", err)
		}

		cfg.Experiments = experiments
	}

	if flags.Changed("threshold") {

		threshold, err := flags.GetFloat64("threshold")

		if err != nil {
			return nil, fmt.Errorf("Failed to read --threshold flag, %w", err)
		}

		cfg.DBHThreshold = threshold
	}

	return cfg, nil
}
