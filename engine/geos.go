package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forestsim/go-forestsim-geoprocess/dataset"
	"github.com/forestsim/go-forestsim-geoprocess/operations/remove"
	"github.com/forestsim/go-forestsim-geoprocess/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geos"
)

func init() {

	ctx := context.Background()
	err := RegisterEngine(ctx, "geos", NewGEOSEngine)

	if err != nil {
		panic(err)
	}
}

// GEOSEngine implements the Engine interface in-process using the GEOS geometry library.
type GEOSEngine struct {
	Engine
	options *Options
	crs     *dataset.CRS
	// the union of the reference layer, loaded on first use
	reference *geos.Geom
}

// NewGEOSEngine returns a new GEOSEngine instance. 'uri' takes the form:
//
//	geos://
func NewGEOSEngine(ctx context.Context, uri string, opts *Options) (Engine, error) {

	if opts == nil {
		return nil, fmt.Errorf("Missing engine options")
	}

	crs, err := opts.crs()

	if err != nil {
		return nil, err
	}

	e := &GEOSEngine{
		options: opts,
		crs:     crs,
	}

	return e, nil
}

func (e *GEOSEngine) Normalize(ctx context.Context, path string) error {

	ds, err := dataset.Read(path)

	if err != nil {
		return fmt.Errorf("Failed to read %s, %w", path, err)
	}

	logger := slog.Default()
	logger = logger.With("path", path)

	repaired := 0

	for i, f := range ds.Features {

		if f.Geometry == nil {
			continue
		}

		geom, changed, err := repairGeometry(f.Geometry)

		if err != nil {
			return fmt.Errorf("Failed to repair feature %d of %s, %w", i, path, err)
		}

		if changed {
			f.Geometry = geom
			repaired += 1
		}
	}

	ds.CRS = e.crs.Identifier()

	err = dataset.Write(path, ds)

	if err != nil {
		return fmt.Errorf("Failed to write %s, %w", path, err)
	}

	logger.Debug("Normalized dataset", "crs", ds.CRS, "repaired", repaired)
	return nil
}

func (e *GEOSEngine) ClippedArea(ctx context.Context, path string) (float64, error) {

	ds, err := dataset.Read(path)

	if err != nil {
		return 0, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	crs, err := e.datasetCRS(ds)

	if err != nil {
		return 0, err
	}

	if crs.Geographic {
		return 0, fmt.Errorf("%w: %s is %s", ErrGeographicCRS, path, crs.Name)
	}

	if ds.FieldIndex(e.options.DBHField) == -1 {
		return 0, fmt.Errorf("Dataset %s has no %s field", path, e.options.DBHField)
	}

	reference, err := e.referenceGeometry()

	if err != nil {
		return 0, err
	}

	scratch_path := e.options.ScratchPath

	// clear out anything an earlier, failed, run left behind
	err = remove.RemoveDatasetAtPath(ctx, scratch_path)

	if err != nil {
		return 0, fmt.Errorf("Failed to remove scratch dataset, %w", err)
	}

	defer remove.RemoveDatasetAtPath(ctx, scratch_path)

	clipped := ds.New()
	clipped.CRS = crs.Identifier()
	clipped.EnsureField(dataset.DoubleField(e.options.AreaField))

	km2_per_unit := crs.MetresPerUnit * crs.MetresPerUnit / 1e6

	err = withGEOS(func() error {

		for i, f := range ds.Features {

			if f.Geometry == nil {
				continue
			}

			g, err := toGEOS(f.Geometry)

			if err != nil {
				return fmt.Errorf("Failed to convert feature %d, %w", i, err)
			}

			clip := g.Intersection(reference)

			if clip.IsEmpty() {
				continue
			}

			geom, err := fromGEOS(clip)

			if err != nil {
				return fmt.Errorf("Failed to convert clipped feature %d, %w", i, err)
			}

			polygons := dataset.Polygons(geom)

			if len(polygons) == 0 {
				continue
			}

			clipped_f := dataset.NewFeature(polygonGeometry(polygons))

			for k, v := range f.Properties {
				clipped_f.Properties[k] = v
			}

			clipped_f.Set(e.options.AreaField, clip.Area()*km2_per_unit)
			clipped.Features = append(clipped.Features, clipped_f)
		}

		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("Failed to clip %s, %w", path, err)
	}

	if len(clipped.Features) == 0 {
		return 0, nil
	}

	err = dataset.Write(scratch_path, clipped)

	if err != nil {
		return 0, fmt.Errorf("Failed to write clipped dataset, %w", err)
	}

	// sum what was persisted, the same way a cursor over the scratch dataset would

	scratch, err := dataset.Read(scratch_path)

	if err != nil {
		return 0, fmt.Errorf("Failed to read clipped dataset, %w", err)
	}

	total := 0.0

	for _, f := range scratch.Features {

		dbh, ok := f.Float(e.options.DBHField)

		if !ok || dbh >= e.options.Threshold {
			continue
		}

		area, ok := f.Float(e.options.AreaField)

		if !ok {
			continue
		}

		total += area
	}

	return total, nil
}

func (e *GEOSEngine) SpatialAutocorrelation(ctx context.Context, path string) (*stats.MoransIResult, error) {

	ds, err := dataset.Read(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	if ds.FieldIndex(e.options.DBHField) == -1 {
		return nil, fmt.Errorf("Dataset %s has no %s field", path, e.options.DBHField)
	}

	ds.EnsureField(dataset.ShortField(e.options.IndicatorField))

	points := make([]orb.Point, 0, len(ds.Features))
	values := make([]float64, 0, len(ds.Features))

	for _, f := range ds.Features {

		indicator := 0.0
		dbh, ok := f.Float(e.options.DBHField)

		if ok && dbh < e.options.Threshold {
			indicator = 1.0
		}

		f.Set(e.options.IndicatorField, indicator)

		if f.Geometry == nil {
			continue
		}

		centroid, _ := planar.CentroidArea(f.Geometry)

		points = append(points, centroid)
		values = append(values, indicator)
	}

	err = dataset.Write(path, ds)

	if err != nil {
		return nil, fmt.Errorf("Failed to write %s field to %s, %w", e.options.IndicatorField, path, err)
	}

	moran_opts := &stats.MoransIOptions{
		Standardization: e.options.Standardization,
		DistanceBand:    e.options.DistanceBand,
	}

	rsp, err := stats.MoransI(points, values, moran_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive Moran's I for %s, %w", path, err)
	}

	return rsp, nil
}

// ClearMapState drops the cached reference layer so the next dataset sees it fresh from disk.
func (e *GEOSEngine) ClearMapState(ctx context.Context) error {
	e.reference = nil
	return nil
}

func (e *GEOSEngine) Close() error {
	e.reference = nil
	return nil
}

func (e *GEOSEngine) datasetCRS(ds *dataset.Dataset) (*dataset.CRS, error) {

	if ds.CRS == "" {
		return e.crs, nil
	}

	crs, err := dataset.LookupCRS(ds.CRS)

	if err != nil {
		return nil, fmt.Errorf("Failed to resolve dataset CRS, %w", err)
	}

	return crs, nil
}

func (e *GEOSEngine) referenceGeometry() (*geos.Geom, error) {

	if e.reference != nil {
		return e.reference, nil
	}

	path := e.options.ReferenceLayer

	ds, err := dataset.Read(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read reference layer %s, %w", path, err)
	}

	var union *geos.Geom

	err = withGEOS(func() error {

		for i, f := range ds.Features {

			if len(dataset.Polygons(f.Geometry)) == 0 {
				continue
			}

			g, err := toGEOS(f.Geometry)

			if err != nil {
				return fmt.Errorf("Failed to convert reference feature %d, %w", i, err)
			}

			if !g.IsValid() {
				g = g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed)
			}

			if union == nil {
				union = g
				continue
			}

			union = union.Union(g)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("Failed to union reference layer %s, %w", path, err)
	}

	if union == nil {
		return nil, fmt.Errorf("Reference layer %s has no polygons", path)
	}

	e.reference = union
	return union, nil
}

// repairGeometry returns a valid version of geom, and whether it had to be changed.
func repairGeometry(geom orb.Geometry) (orb.Geometry, bool, error) {

	var repaired orb.Geometry
	changed := false

	err := withGEOS(func() error {

		g, err := toGEOS(geom)

		if err != nil {
			return err
		}

		if g.IsValid() {
			return nil
		}

		slog.Debug("Repair invalid geometry", "reason", g.IsValidReason())

		fixed, err := fromGEOS(g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed))

		if err != nil {
			return err
		}

		// keep the dataset's geometry type, dropping the slivers and points MakeValid can introduce
		polygons := dataset.Polygons(fixed)

		if len(polygons) > 0 {
			fixed = polygonGeometry(polygons)
		}

		repaired = fixed
		changed = true

		return nil
	})

	if err != nil {
		return nil, false, err
	}

	return repaired, changed, nil
}

func polygonGeometry(polygons []orb.Polygon) orb.Geometry {

	if len(polygons) == 1 {
		return polygons[0]
	}

	return orb.MultiPolygon(polygons)
}

func toGEOS(geom orb.Geometry) (*geos.Geom, error) {

	body, err := geojson.NewGeometry(geom).MarshalJSON()

	if err != nil {
		return nil, fmt.Errorf("Failed to marshal geometry, %w", err)
	}

	g, err := geos.NewGeomFromGeoJSON(string(body))

	if err != nil {
		return nil, fmt.Errorf("Failed to parse geometry, %w", err)
	}

	return g, nil
}

func fromGEOS(g *geos.Geom) (orb.Geometry, error) {

	geom, err := geojson.UnmarshalGeometry([]byte(g.ToGeoJSON(-1)))

	if err != nil {
		return nil, fmt.Errorf("Failed to unmarshal geometry, %w", err)
	}

	return geom.Geometry(), nil
}

// withGEOS runs fn, turning the panics go-geos raises for GEOS errors in to errors.
func withGEOS(fn func() error) (err error) {

	defer func() {

		r := recover()

		if r != nil {
			err = fmt.Errorf("GEOS error, %v", r)
		}
	}()

	return fn()
}
