// Package config defines the settings for a geoprocessing run: where the experiment outputs live,
// which GIS engine to use and the thresholds and field names the metrics depend on.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// OnErrorAbort stops the whole run at the first failed dataset.
	OnErrorAbort = "abort"
	// OnErrorSkip logs the failure, skips the dataset and carries on.
	OnErrorSkip = "skip"
)

const (
	StandardizationNone = "none"
	StandardizationRow  = "row"
)

// Config contains every setting for a run.
type Config struct {
	// Root is the directory containing one subdirectory per experiment.
	Root string `json:"root" yaml:"root"`

	// Experiments are the experiment names (subdirectories of Root) to process, in order.
	Experiments []string `json:"experiments" yaml:"experiments"`

	// Extension is the filename extension of the datasets to process.
	Extension string `json:"extension" yaml:"extension"`

	// EngineURI selects the GIS engine, for example "geos://" or "arcpy://?python=C:/Python27/ArcGIS10.4/python.exe".
	EngineURI string `json:"engine" yaml:"engine"`

	// ReferenceLayer is the dataset (a roads buffer) the aesthetics metric clips against.
	ReferenceLayer string `json:"reference_layer" yaml:"reference_layer"`

	// ScratchDir holds the scratch clip output and working copies.
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir"`

	// ScratchName is the filename of the scratch clip output inside ScratchDir.
	ScratchName string `json:"scratch_name" yaml:"scratch_name"`

	// MapDocument is the map document whose layers are cleared after each dataset. Only used by engines
	// that keep map state.
	MapDocument string `json:"map_document,omitempty" yaml:"map_document,omitempty"`

	// CRS is the coordinate reference system assigned to every dataset.
	CRS string `json:"crs" yaml:"crs"`

	// DBHThreshold is the diameter at breast height below which a stand counts towards both metrics.
	DBHThreshold float64 `json:"dbh_threshold" yaml:"dbh_threshold"`

	Fields FieldsConfig `json:"fields" yaml:"fields"`

	Outputs OutputsConfig `json:"outputs" yaml:"outputs"`

	Autocorrelation AutocorrelationConfig `json:"autocorrelation" yaml:"autocorrelation"`

	// OnError is either "abort" (default) or "skip".
	OnError string `json:"on_error" yaml:"on_error"`

	// WorkingCopy runs the engine against a scratch copy of each dataset so inputs are left untouched.
	WorkingCopy bool `json:"working_copy" yaml:"working_copy"`

	// DryRun logs what would be processed without calling the engine or writing results.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// FieldsConfig names the attribute fields read and written on each dataset.
type FieldsConfig struct {
	DBH       string `json:"dbh" yaml:"dbh"`
	Area      string `json:"area" yaml:"area"`
	Indicator string `json:"indicator" yaml:"indicator"`
}

// OutputsConfig names the accumulator files written in each experiment directory.
type OutputsConfig struct {
	Aesthetics          string `json:"aesthetics" yaml:"aesthetics"`
	HabitatConnectivity string `json:"habitat_connectivity" yaml:"habitat_connectivity"`
}

// AutocorrelationConfig configures the Moran's I computation.
type AutocorrelationConfig struct {
	// Standardization is "none" (default) or "row".
	Standardization string `json:"standardization" yaml:"standardization"`

	// DistanceBand excludes neighbours further apart than this (in CRS units). Zero means no limit.
	DistanceBand float64 `json:"distance_band" yaml:"distance_band"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the values the ForestSim experiments were analysed with.
func Default() *Config {
	return &Config{
		Root:           "../out",
		Experiments:    []string{"none", "discount", "agglomeration"},
		Extension:      ".shp",
		EngineURI:      "geos://",
		ReferenceLayer: "shapefiles/roads/roads_buffer.shp",
		ScratchDir:     "scratch",
		ScratchName:    "clipped.shp",
		CRS:            "EPSG:26916",
		DBHThreshold:   12.5,
		Fields: FieldsConfig{
			DBH:       "DBH",
			Area:      "AREA",
			Indicator: "HABITAT",
		},
		Outputs: OutputsConfig{
			Aesthetics:          "aesthetics.csv",
			HabitatConnectivity: "habitatConnectivity.csv",
		},
		Autocorrelation: AutocorrelationConfig{
			Standardization: StandardizationNone,
		},
		OnError: OnErrorAbort,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile reads a YAML config file over the defaults. Keys missing from the file keep their
// default value.
func LoadFromFile(path string) (*Config, error) {

	body, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read config file %s, %w", path, err)
	}

	cfg := Default()

	err = yaml.Unmarshal(body, cfg)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse config file %s, %w", path, err)
	}

	return cfg, nil
}

// ExperimentDir returns the input directory for an experiment.
func (c *Config) ExperimentDir(experiment string) string {
	return filepath.Join(c.Root, experiment)
}

// ScratchPath returns the path of the scratch clip output.
func (c *Config) ScratchPath() string {
	return filepath.Join(c.ScratchDir, c.ScratchName)
}

// Validate checks that the config can drive a run.
func (c *Config) Validate() error {

	problems := make([]string, 0)

	if c.Root == "" {
		problems = append(problems, "root is required")
	}

	if len(c.Experiments) == 0 {
		problems = append(problems, "at least one experiment is required")
	}

	for _, e := range c.Experiments {

		if e == "" || strings.ContainsAny(e, `/\`) || e == "." || e == ".." {
			problems = append(problems, fmt.Sprintf("invalid experiment name %q", e))
		}
	}

	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		problems = append(problems, fmt.Sprintf("extension %q must start with a dot", c.Extension))
	}

	if c.EngineURI == "" {
		problems = append(problems, "engine is required")
	}

	if c.ReferenceLayer == "" {
		problems = append(problems, "reference_layer is required")
	}

	if c.ScratchDir == "" || c.ScratchName == "" {
		problems = append(problems, "scratch_dir and scratch_name are required")
	}

	if c.CRS == "" {
		problems = append(problems, "crs is required")
	}

	if c.DBHThreshold <= 0 {
		problems = append(problems, "dbh_threshold must be positive")
	}

	if c.Fields.DBH == "" || c.Fields.Area == "" || c.Fields.Indicator == "" {
		problems = append(problems, "fields.dbh, fields.area and fields.indicator are required")
	}

	if c.Outputs.Aesthetics == "" || c.Outputs.HabitatConnectivity == "" {
		problems = append(problems, "outputs.aesthetics and outputs.habitat_connectivity are required")
	}

	if c.Outputs.Aesthetics == c.Outputs.HabitatConnectivity {
		problems = append(problems, "outputs must be distinct files")
	}

	switch c.Autocorrelation.Standardization {
	case StandardizationNone, StandardizationRow:
		// pass
	default:
		problems = append(problems, fmt.Sprintf("unknown standardization %q", c.Autocorrelation.Standardization))
	}

	if c.Autocorrelation.DistanceBand < 0 {
		problems = append(problems, "autocorrelation.distance_band must not be negative")
	}

	switch c.OnError {
	case OnErrorAbort, OnErrorSkip:
		// pass
	default:
		problems = append(problems, fmt.Sprintf("on_error must be %q or %q, got %q", OnErrorAbort, OnErrorSkip, c.OnError))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}
