package engine

import (
	"context"
	"testing"

	"github.com/forestsim/go-forestsim-geoprocess/config"
	"github.com/forestsim/go-forestsim-geoprocess/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemes(t *testing.T) {
	schemes := Schemes()

	assert.Contains(t, schemes, "geos://")
	assert.Contains(t, schemes, "arcpy://")
}

func TestNewEngine(t *testing.T) {
	ctx := context.Background()

	opts, err := OptionsFromConfig(config.Default())
	require.NoError(t, err)

	e, err := NewEngine(ctx, "geos://", opts)
	require.NoError(t, err)
	assert.IsType(t, &GEOSEngine{}, e)
	assert.NoError(t, e.Close())

	e, err = NewEngine(ctx, "arcpy://?python=/opt/arcgis/python.exe", opts)
	require.NoError(t, err)
	require.IsType(t, &ArcPyEngine{}, e)
	assert.Equal(t, "/opt/arcgis/python.exe", e.(*ArcPyEngine).python)

	_, err = NewEngine(ctx, "qgis://", opts)
	assert.Error(t, err)

	_, err = NewEngine(ctx, "geos://", nil)
	assert.Error(t, err)

	opts.CRS = "EPSG:3857"

	_, err = NewEngine(ctx, "geos://", opts)
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ScratchDir = "tmp"
	cfg.Autocorrelation.Standardization = config.StandardizationRow
	cfg.Autocorrelation.DistanceBand = 250

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "EPSG:26916", opts.CRS)
	assert.Equal(t, cfg.ScratchPath(), opts.ScratchPath)
	assert.Equal(t, "DBH", opts.DBHField)
	assert.Equal(t, "AREA", opts.AreaField)
	assert.Equal(t, "HABITAT", opts.IndicatorField)
	assert.Equal(t, 12.5, opts.Threshold)
	assert.Equal(t, stats.StandardizationRow, opts.Standardization)
	assert.Equal(t, 250.0, opts.DistanceBand)

	cfg.Autocorrelation.Standardization = "column"

	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
