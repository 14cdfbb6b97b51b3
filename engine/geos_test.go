package engine

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestsim/go-forestsim-geoprocess/dataset"
	"github.com/forestsim/go-forestsim-geoprocess/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(min_x float64, min_y float64, max_x float64, max_y float64) orb.Polygon {
	return orb.Polygon{
		orb.Ring{{min_x, min_y}, {max_x, min_y}, {max_x, max_y}, {min_x, max_y}, {min_x, min_y}},
	}
}

// writePlots writes one 100m square per DBH value, side by side along the x axis.
func writePlots(t *testing.T, path string, crs string, dbh ...float64) {

	ds := &dataset.Dataset{
		CRS:    crs,
		Fields: []dataset.Field{dataset.DoubleField("DBH")},
	}

	for i, v := range dbh {

		x := float64(i) * 100

		f := dataset.NewFeature(rect(x, 0, x+100, 100))
		f.Properties["DBH"] = v

		ds.Features = append(ds.Features, f)
	}

	require.NoError(t, dataset.Write(path, ds))
}

func writeReference(t *testing.T, path string, polygons ...orb.Polygon) {

	ds := &dataset.Dataset{
		CRS:    "EPSG:26916",
		Fields: []dataset.Field{dataset.ShortField("ID")},
	}

	for i, p := range polygons {
		f := dataset.NewFeature(p)
		f.Properties["ID"] = float64(i)
		ds.Features = append(ds.Features, f)
	}

	require.NoError(t, dataset.Write(path, ds))
}

func newTestGEOSEngine(t *testing.T, dir string) *GEOSEngine {

	opts := &Options{
		CRS:            "EPSG:26916",
		ReferenceLayer: filepath.Join(dir, "roads_buffer.shp"),
		ScratchPath:    filepath.Join(dir, "scratch", "clipped.shp"),
		DBHField:       "DBH",
		AreaField:      "AREA",
		IndicatorField: "HABITAT",
		Threshold:      12.5,
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(opts.ScratchPath), 0755))

	e, err := NewGEOSEngine(context.Background(), "geos://", opts)
	require.NoError(t, err)

	return e.(*GEOSEngine)
}

func TestGEOSEngine_Normalize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	path := filepath.Join(dir, "nipfo1.shp")

	// a self-intersecting "bowtie" alongside a valid square
	bowtie := orb.Polygon{orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}

	ds := &dataset.Dataset{Fields: []dataset.Field{dataset.DoubleField("DBH")}}
	ds.Features = append(ds.Features, dataset.NewFeature(bowtie), dataset.NewFeature(rect(20, 0, 30, 10)))

	require.NoError(t, dataset.Write(path, ds))
	assert.NoFileExists(t, filepath.Join(dir, "nipfo1.prj"))

	require.NoError(t, e.Normalize(ctx, path))

	assert.FileExists(t, filepath.Join(dir, "nipfo1.prj"))

	normalized, err := dataset.Read(path)
	require.NoError(t, err)

	assert.Equal(t, "EPSG:26916", normalized.CRS)
	require.Len(t, normalized.Features, 2)

	area := 0.0

	for _, p := range dataset.Polygons(normalized.Features[0].Geometry) {
		area += math.Abs(planar.Area(p))
	}

	// the bowtie becomes two triangles
	assert.InDelta(t, 50.0, area, 1e-9)
	assert.Len(t, dataset.Polygons(normalized.Features[0].Geometry), 2)

	for _, f := range normalized.Features {

		valid, _, err := repairGeometry(f.Geometry)
		require.NoError(t, err)
		assert.Nil(t, valid, "geometry should already be valid")
	}

	// normalizing twice is harmless
	require.NoError(t, e.Normalize(ctx, path))
}

func TestGEOSEngine_NormalizeGeoJSON(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	path := filepath.Join(dir, "plots.geojson")
	writePlots(t, path, "", 10, 20)

	require.NoError(t, e.Normalize(ctx, path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "urn:ogc:def:crs:EPSG::26916")
}

func TestGEOSEngine_ClippedArea(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	// two overlapping buffers that together cover x = 50..150, counted once after the union
	writeReference(t, e.options.ReferenceLayer, rect(50, 0, 100, 100), rect(75, 0, 150, 100))

	path := filepath.Join(dir, "nipfo1.shp")
	writePlots(t, path, "EPSG:26916", 10, 20, 5)

	area, err := e.ClippedArea(ctx, path)
	require.NoError(t, err)

	// only the first plot is below the threshold: 50m x 100m
	assert.InDelta(t, 0.005, area, 1e-9)

	assert.NoFileExists(t, e.options.ScratchPath)

	// the input is not modified
	ds, err := dataset.Read(path)
	require.NoError(t, err)
	assert.Equal(t, -1, ds.FieldIndex("AREA"))

	e.options.Threshold = 25

	area, err = e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, area, 1e-9)
}

func TestGEOSEngine_ClippedAreaEmptySelection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	writeReference(t, e.options.ReferenceLayer, rect(0, 0, 1000, 1000))

	path := filepath.Join(dir, "nipfo1.shp")
	writePlots(t, path, "EPSG:26916", 20, 30)

	area, err := e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, area)

	// nothing overlaps the reference layer at all
	writeReference(t, e.options.ReferenceLayer, rect(5000, 5000, 6000, 6000))
	require.NoError(t, e.ClearMapState(ctx))

	writePlots(t, path, "EPSG:26916", 1, 2)

	area, err = e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, area)
}

func TestGEOSEngine_ClippedAreaErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	writeReference(t, e.options.ReferenceLayer, rect(0, 0, 1000, 1000))

	path := filepath.Join(dir, "latlon.shp")
	writePlots(t, path, "EPSG:4326", 10)

	_, err := e.ClippedArea(ctx, path)
	assert.ErrorIs(t, err, ErrGeographicCRS)

	path = filepath.Join(dir, "missing.shp")

	_, err = e.ClippedArea(ctx, path)
	assert.Error(t, err)

	no_dbh := &dataset.Dataset{CRS: "EPSG:26916"}
	no_dbh.Features = append(no_dbh.Features, dataset.NewFeature(rect(0, 0, 1, 1)))

	path = filepath.Join(dir, "nodbh.shp")
	require.NoError(t, dataset.Write(path, no_dbh))

	_, err = e.ClippedArea(ctx, path)
	assert.Error(t, err)
}

func TestGEOSEngine_ClearMapState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	writeReference(t, e.options.ReferenceLayer, rect(0, 0, 50, 100))

	path := filepath.Join(dir, "nipfo1.shp")
	writePlots(t, path, "EPSG:26916", 10)

	area, err := e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, area, 1e-9)

	writeReference(t, e.options.ReferenceLayer, rect(0, 0, 100, 100))

	// still cached
	area, err = e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, area, 1e-9)

	require.NoError(t, e.ClearMapState(ctx))

	area, err = e.ClippedArea(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, area, 1e-9)
}

func TestGEOSEngine_SpatialAutocorrelation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	path := filepath.Join(dir, "nipfo1.shp")
	writePlots(t, path, "EPSG:26916", 10, 11, 20, 30)

	rsp, err := e.SpatialAutocorrelation(ctx, path)
	require.NoError(t, err)

	// evenly spaced centroids with indicators 1, 1, 0, 0
	assert.Equal(t, 4, rsp.N)
	assert.InDelta(t, -1.0/13.0, rsp.Index, 1e-9)

	ds, err := dataset.Read(path)
	require.NoError(t, err)
	require.NotEqual(t, -1, ds.FieldIndex("HABITAT"))

	expected := []float64{1, 1, 0, 0}

	for i, f := range ds.Features {
		v, ok := f.Float("HABITAT")
		require.True(t, ok)
		assert.Equal(t, expected[i], v)
	}

	// a second pass reuses the existing field
	_, err = e.SpatialAutocorrelation(ctx, path)
	require.NoError(t, err)

	ds, err = dataset.Read(path)
	require.NoError(t, err)
	assert.Len(t, ds.Fields, 2)
}

func TestGEOSEngine_SpatialAutocorrelationErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := newTestGEOSEngine(t, dir)

	path := filepath.Join(dir, "few.shp")
	writePlots(t, path, "EPSG:26916", 10, 20, 30)

	_, err := e.SpatialAutocorrelation(ctx, path)
	assert.ErrorIs(t, err, stats.ErrTooFewFeatures)

	path = filepath.Join(dir, "constant.shp")
	writePlots(t, path, "EPSG:26916", 20, 20, 20, 20)

	_, err = e.SpatialAutocorrelation(ctx, path)
	assert.ErrorIs(t, err, stats.ErrZeroVariance)
}
