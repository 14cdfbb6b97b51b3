package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/forestsim/go-forestsim-geoprocess/common"
	"github.com/forestsim/go-forestsim-geoprocess/config"
	"github.com/forestsim/go-forestsim-geoprocess/engine"
	"github.com/forestsim/go-forestsim-geoprocess/operations/clone"
	"github.com/forestsim/go-forestsim-geoprocess/operations/gather"
	"github.com/forestsim/go-forestsim-geoprocess/operations/remove"
	"github.com/forestsim/go-forestsim-geoprocess/results"
	"github.com/hashicorp/go-multierror"
)

// Processor provides a struct for running every dataset of one or more experiments through a GIS engine
// and accumulating the resulting metrics.
type Processor struct {
	// The engine that normalizes and measures each dataset. It may be nil for dry runs.
	Engine engine.Engine
	// The settings for the run.
	Config *config.Config
	// Defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// ProcessExperiments prepares the scratch directory and then processes each configured experiment in order.
func (p *Processor) ProcessExperiments(ctx context.Context) error {

	logger := p.logger()

	if p.Engine == nil && !p.Config.DryRun {
		return fmt.Errorf("Missing engine")
	}

	err := p.setup(ctx)

	if err != nil {
		return err
	}

	var errs *multierror.Error

	for _, name := range p.Config.Experiments {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// pass
		}

		err := p.ProcessExperiment(ctx, name)

		if err == nil {
			continue
		}

		if !p.skipErrors() {
			return err
		}

		logger.Warn("Experiment finished with errors", "experiment", name, "error", err)
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// ProcessExperiment crawls an experiment's directory tree top-down and processes each directory as one pass.
func (p *Processor) ProcessExperiment(ctx context.Context, name string) error {

	dir := p.Config.ExperimentDir(name)

	logger := p.logger()
	logger = logger.With("experiment", name)

	logger.Info("Process experiment", "directory", dir)

	gather_opts := &gather.GatherDatasetsOptions{
		Extension:   p.Config.Extension,
		Fingerprint: true,
	}

	sinks := results.NewExperiment(dir, p.Config.Outputs)

	var errs *multierror.Error

	cb := func(d *gather.GatherDirectoryResponse) error {

		err := p.ProcessDirectory(ctx, sinks, d)

		if err == nil {
			return nil
		}

		if !p.skipErrors() || ctx.Err() != nil {
			return err
		}

		errs = multierror.Append(errs, err)
		return nil
	}

	err := gather.CrawlDirectoriesInDirectory(ctx, dir, gather_opts, cb)

	if err != nil {
		return fmt.Errorf("Failed to process experiment %s, %w", name, err)
	}

	return errs.ErrorOrNil()
}

// ProcessDirectory processes the datasets of a single directory, in order, and then terminates the current row
// of the experiment's sinks. The row is terminated even if the directory has no datasets. In skip mode the
// row is also terminated when datasets fail and their errors are returned together afterwards.
func (p *Processor) ProcessDirectory(ctx context.Context, sinks *results.Experiment, d *gather.GatherDirectoryResponse) error {

	logger := p.logger()
	logger = logger.With("directory", d.Path)

	logger.Debug("Process directory", "datasets", len(d.Datasets))

	var errs *multierror.Error

	for _, ds := range d.Datasets {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// pass
		}

		err := p.ProcessDataset(ctx, sinks, ds)

		if err == nil {
			continue
		}

		err = fmt.Errorf("Failed to process %s, %w", ds.Path, err)

		if !p.skipErrors() {
			return err
		}

		logger.Warn("Skipping dataset", "path", ds.Path, "error", err)
		errs = multierror.Append(errs, err)
	}

	if p.Config.DryRun {
		logger.Info("[dryrun] end pass here", "aesthetics", sinks.Aesthetics.Path(), "habitat_connectivity", sinks.HabitatConnectivity.Path())
		return errs.ErrorOrNil()
	}

	err := sinks.EndPass()

	if err != nil {
		return fmt.Errorf("Failed to end pass for %s, %w", d.Path, err)
	}

	return errs.ErrorOrNil()
}

// ProcessDataset normalizes and measures a single dataset and appends its metric pair to sinks. Nothing is
// appended unless both metrics were derived.
func (p *Processor) ProcessDataset(ctx context.Context, sinks *results.Experiment, d *gather.GatherDatasetsResponse) error {

	logger := p.logger()
	logger = logger.With("path", d.Path, "fingerprint", d.Fingerprint)

	if p.Config.DryRun {
		logger.Info("[dryrun] process dataset here")
		return nil
	}

	path := d.Path

	if p.Config.WorkingCopy {

		working_path, err := p.workingCopy(ctx, d)

		if err != nil {
			return err
		}

		defer func() {

			err := remove.RemoveDatasetAtPath(ctx, working_path)

			if err != nil {
				logger.Warn("Failed to remove working copy", "working_copy", working_path, "error", err)
			}
		}()

		logger.Debug("Created working copy", "working_copy", working_path)
		path = working_path
	}

	area, connectivity, err := p.measure(ctx, path)

	if err != nil {

		clear_err := p.Engine.ClearMapState(ctx)

		if clear_err != nil {
			logger.Warn("Failed to clear map state", "error", clear_err)
		}

		return err
	}

	err = sinks.Record(area, connectivity)

	if err != nil {
		return fmt.Errorf("Failed to record metrics, %w", err)
	}

	logger.Info("Processed dataset", "area", area, "connectivity", connectivity)

	err = p.Engine.ClearMapState(ctx)

	if err != nil {
		return fmt.Errorf("Failed to clear map state, %w", err)
	}

	return nil
}

func (p *Processor) measure(ctx context.Context, path string) (float64, float64, error) {

	err := p.Engine.Normalize(ctx, path)

	if err != nil {
		return 0, 0, fmt.Errorf("Failed to normalize dataset, %w", err)
	}

	area, err := p.Engine.ClippedArea(ctx, path)

	if err != nil {
		return 0, 0, fmt.Errorf("Failed to derive aesthetics, %w", err)
	}

	moran, err := p.Engine.SpatialAutocorrelation(ctx, path)

	if err != nil {
		return 0, 0, fmt.Errorf("Failed to derive habitat connectivity, %w", err)
	}

	p.logger().Debug("Spatial autocorrelation", "path", path, "index", moran.Index, "expected", moran.ExpectedIndex, "z_score", moran.ZScore, "p_value", moran.PValue)

	return area, moran.Index, nil
}

// workingCopy clones a dataset in to the scratch directory and returns the path of the copy.
func (p *Processor) workingCopy(ctx context.Context, d *gather.GatherDatasetsResponse) (string, error) {

	source, err := common.OpenDirectoryBucket(ctx, filepath.Dir(d.Path))

	if err != nil {
		return "", err
	}

	defer source.Close()

	target, err := common.OpenDirectoryBucket(ctx, p.Config.ScratchDir)

	if err != nil {
		return "", err
	}

	defer target.Close()

	opts := &clone.CloneDatasetOptions{
		Source:    source,
		Target:    target,
		Key:       filepath.Base(d.Path),
		TargetKey: "working_" + filepath.Base(d.Path),
		Force:     true,
	}

	key, err := clone.CloneDataset(ctx, opts)

	if err != nil {
		return "", fmt.Errorf("Failed to create working copy, %w", err)
	}

	return filepath.Join(p.Config.ScratchDir, key), nil
}

// setup makes sure the scratch directory exists and holds no clip output from an earlier run.
func (p *Processor) setup(ctx context.Context) error {

	if p.Config.DryRun {
		p.logger().Info("[dryrun] prepare scratch directory here", "scratch", p.Config.ScratchDir)
		return nil
	}

	err := os.MkdirAll(p.Config.ScratchDir, 0755)

	if err != nil {
		return fmt.Errorf("Failed to create scratch directory, %w", err)
	}

	err = remove.RemoveDatasetAtPath(ctx, p.Config.ScratchPath())

	if err != nil {
		return fmt.Errorf("Failed to remove existing scratch dataset, %w", err)
	}

	return nil
}

func (p *Processor) skipErrors() bool {
	return p.Config.OnError == config.OnErrorSkip
}

func (p *Processor) logger() *slog.Logger {

	if p.Logger != nil {
		return p.Logger
	}

	return slog.Default()
}
