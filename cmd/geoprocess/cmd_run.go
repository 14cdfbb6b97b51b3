package main

import (
	"fmt"
	"log/slog"

	"github.com/forestsim/go-forestsim-geoprocess/engine"
	"github.com/forestsim/go-forestsim-geoprocess/logging"
	"github.com/forestsim/go-forestsim-geoprocess/operations/process"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every configured experiment and append its metrics",
		Args:  cobra.NoArgs,
		RunE:  runProcess,
	}
}

func runProcess(cmd *cobra.Command, args []string) error {

	if len(args) > 0 {
		return fmt.Errorf("Unexpected arguments %v, see --help", args)
	}

	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)

	if err != nil {
		return err
	}

	err = cfg.Validate()

	if err != nil {
		return err
	}

	// every line logged by a run carries the same run id
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	logger = logger.With("run", uuid.NewString())

	slog.SetDefault(logger)

	p := &process.Processor{
		Config: cfg,
		Logger: logger,
	}

	if !cfg.DryRun {

		opts, err := engine.OptionsFromConfig(cfg)

		if err != nil {
			return err
		}

		e, err := engine.NewEngine(ctx, cfg.EngineURI, opts)

		if err != nil {
			return fmt.Errorf("Failed to create engine, %w", err)
		}

		defer e.Close()

		p.Engine = e
	}

	return p.ProcessExperiments(ctx)
}
