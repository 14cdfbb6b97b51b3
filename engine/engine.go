// Package engine defines the GIS capabilities a geoprocessing run depends on and a registry of
// implementations, selected by URI scheme.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aaronland/go-roster"
	"github.com/forestsim/go-forestsim-geoprocess/config"
	"github.com/forestsim/go-forestsim-geoprocess/dataset"
	"github.com/forestsim/go-forestsim-geoprocess/stats"
)

// ErrGeographicCRS is returned when an area is requested for a dataset whose coordinates are in degrees.
var ErrGeographicCRS = errors.New("area requires a projected coordinate reference system")

// Engine is the interface for the GIS operations applied to each dataset. Datasets are addressed by
// path and are modified in place.
type Engine interface {
	// Normalize assigns the configured coordinate reference system to the dataset at path and repairs
	// any invalid geometries.
	Normalize(context.Context, string) error
	// ClippedArea clips the dataset at path against the reference layer and returns the total area, in
	// square kilometers, of the clipped features whose DBH is below the threshold.
	ClippedArea(context.Context, string) (float64, error)
	// SpatialAutocorrelation writes the habitat indicator field to the dataset at path and returns the
	// global Moran's I of that field.
	SpatialAutocorrelation(context.Context, string) (*stats.MoransIResult, error)
	// ClearMapState discards any layers or cached data accumulated while processing a dataset.
	ClearMapState(context.Context) error
	// Close releases any resources held by the engine.
	Close() error
}

// Options are the settings shared by every Engine implementation.
type Options struct {
	// CRS is assigned to every dataset by Normalize.
	CRS string
	// ReferenceLayer is the dataset ClippedArea clips against.
	ReferenceLayer string
	// ScratchPath is where ClippedArea writes its clipped output. It is removed afterwards.
	ScratchPath string
	// MapDocument is the map document cleared by ClearMapState, if the engine has one.
	MapDocument     string
	DBHField        string
	AreaField       string
	IndicatorField  string
	Threshold       float64
	Standardization stats.Standardization
	DistanceBand    float64
}

// OptionsFromConfig derives engine Options from a run's config.
func OptionsFromConfig(cfg *config.Config) (*Options, error) {

	standardization, err := stats.ParseStandardization(cfg.Autocorrelation.Standardization)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse standardization, %w", err)
	}

	opts := &Options{
		CRS:             cfg.CRS,
		ReferenceLayer:  cfg.ReferenceLayer,
		ScratchPath:     cfg.ScratchPath(),
		MapDocument:     cfg.MapDocument,
		DBHField:        cfg.Fields.DBH,
		AreaField:       cfg.Fields.Area,
		IndicatorField:  cfg.Fields.Indicator,
		Threshold:       cfg.DBHThreshold,
		Standardization: standardization,
		DistanceBand:    cfg.Autocorrelation.DistanceBand,
	}

	return opts, nil
}

func (o *Options) crs() (*dataset.CRS, error) {

	crs, err := dataset.LookupCRS(o.CRS)

	if err != nil {
		return nil, fmt.Errorf("Failed to resolve CRS %q, %w", o.CRS, err)
	}

	return crs, nil
}

var engine_roster roster.Roster

// EngineInitializationFunc is a function defined by individual engine packages and used to create
// an instance of that engine.
type EngineInitializationFunc func(ctx context.Context, uri string, opts *Options) (Engine, error)

// RegisterEngine registers 'scheme' as a key pointing to 'init_func' in an internal lookup table
// used to create new `Engine` instances by the `NewEngine` method.
func RegisterEngine(ctx context.Context, scheme string, init_func EngineInitializationFunc) error {

	err := ensureEngineRoster()

	if err != nil {
		return err
	}

	return engine_roster.Register(ctx, scheme, init_func)
}

func ensureEngineRoster() error {

	if engine_roster == nil {

		r, err := roster.NewDefaultRoster()

		if err != nil {
			return err
		}

		engine_roster = r
	}

	return nil
}

// NewEngine returns a new `Engine` instance configured by 'uri'. The value of 'uri' is parsed
// as a `url.URL` and its scheme is used as the key for a corresponding `EngineInitializationFunc`
// function used to instantiate the new `Engine`.
func NewEngine(ctx context.Context, uri string, opts *Options) (Engine, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse engine URI, %w", err)
	}

	err = ensureEngineRoster()

	if err != nil {
		return nil, err
	}

	i, err := engine_roster.Driver(ctx, u.Scheme)

	if err != nil {
		return nil, fmt.Errorf("Unknown engine %q, %w", u.Scheme, err)
	}

	init_func := i.(EngineInitializationFunc)
	return init_func(ctx, uri, opts)
}

// Schemes returns the list of schemes that have been registered.
func Schemes() []string {

	ctx := context.Background()
	schemes := []string{}

	err := ensureEngineRoster()

	if err != nil {
		return schemes
	}

	for _, dr := range engine_roster.Drivers(ctx) {
		scheme := fmt.Sprintf("%s://", strings.ToLower(dr))
		schemes = append(schemes, scheme)
	}

	sort.Strings(schemes)
	return schemes
}
