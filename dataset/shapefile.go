package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/natefinch/atomic"
	"github.com/paulmach/orb"
)

// ErrUnsupportedShape is returned for shapefile geometry types other than points, polylines and polygons,
// and for datasets mixing geometry types.
var ErrUnsupportedShape = errors.New("unsupported shape type")

func prjPath(shp_path string) string {
	return shp_path[:len(shp_path)-len(".shp")] + ".prj"
}

func readShapefile(path string) (*Dataset, error) {

	r, err := shp.Open(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to open shapefile %s, %w", path, err)
	}

	defer r.Close()

	shp_fields := r.Fields()
	fields := make([]Field, len(shp_fields))

	for i, f := range shp_fields {

		field := Field{
			Name:      f.String(),
			Size:      f.Size,
			Precision: f.Precision,
		}

		switch f.Fieldtype {
		case 'N', 'F':
			field.Type = FieldNumber
		default:
			field.Type = FieldString
		}

		fields[i] = field
	}

	ds := &Dataset{
		Fields:   fields,
		Features: make([]*Feature, 0),
	}

	for r.Next() {

		row, shape := r.Shape()

		geom, err := shapeToGeometry(shape)

		if err != nil {
			return nil, fmt.Errorf("Failed to read shape %d of %s, %w", row, path, err)
		}

		feature := NewFeature(geom)

		for i, field := range fields {

			raw := strings.Trim(r.ReadAttribute(row, i), " \x00")

			if field.Type != FieldNumber {
				feature.Properties[field.Name] = raw
				continue
			}

			v, err := strconv.ParseFloat(raw, 64)

			if err != nil {
				// blank or overflowed ("*****") numeric cells are null
				feature.Properties[field.Name] = nil
				continue
			}

			feature.Properties[field.Name] = v
		}

		ds.Features = append(ds.Features, feature)
	}

	// Next stops on a damaged record as well as at the end of the file
	err = r.Err()

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	prj, err := os.ReadFile(prjPath(path))

	switch {
	case err == nil:

		wkt := string(bytes.TrimSpace(prj))
		crs, lookup_err := LookupCRS(wkt)

		if lookup_err == nil {
			ds.CRS = crs.Identifier()
		} else {
			ds.CRS = wkt
		}

	case os.IsNotExist(err):
		// pass
	default:
		return nil, fmt.Errorf("Failed to read projection for %s, %w", path, err)
	}

	return ds, nil
}

func writeShapefile(path string, ds *Dataset) error {

	shape_type, err := datasetShapeType(ds)

	if err != nil {
		return fmt.Errorf("Failed to write %s, %w", path, err)
	}

	shp_fields := make([]shp.Field, len(ds.Fields))

	for i, f := range ds.Fields {

		if len(f.Name) == 0 || len(f.Name) > 10 {
			return fmt.Errorf("Invalid shapefile field name %q, must be 1-10 characters", f.Name)
		}

		size := f.Size

		switch f.Type {
		case FieldNumber:

			if size == 0 {
				size = 19
			}

			if f.Precision > 0 {
				shp_fields[i] = shp.FloatField(f.Name, size, f.Precision)
			} else {
				shp_fields[i] = shp.NumberField(f.Name, size)
			}

		default:

			if size == 0 {
				size = 254
			}

			shp_fields[i] = shp.StringField(f.Name, size)
		}
	}

	w, err := shp.Create(path, shape_type)

	if err != nil {
		return fmt.Errorf("Failed to create shapefile %s, %w", path, err)
	}

	err = w.SetFields(shp_fields)

	if err != nil {
		w.Close()
		return fmt.Errorf("Failed to set fields for %s, %w", path, err)
	}

	for _, feature := range ds.Features {

		shape := geometryToShape(feature.Geometry, shape_type)
		row := int(w.Write(shape))

		for i, f := range ds.Fields {

			v, ok := feature.Value(f.Name)

			if !ok || v == nil {
				continue
			}

			var value interface{}

			switch f.Type {
			case FieldNumber:

				n, ok := feature.Float(f.Name)

				if !ok {
					continue
				}

				value = n

			default:
				value = fmt.Sprintf("%v", v)
			}

			err := w.WriteAttribute(row, i, value)

			if err != nil {
				w.Close()
				return fmt.Errorf("Failed to write %s for row %d of %s, %w", f.Name, row, path, err)
			}
		}
	}

	w.Close()

	return writeProjection(prjPath(path), ds.CRS)
}

// writeProjection writes the .prj sidecar for crs. An empty crs leaves any existing .prj alone.
func writeProjection(path string, crs string) error {

	if crs == "" {
		return nil
	}

	var wkt string

	c, err := LookupCRS(crs)

	switch {
	case err == nil:
		wkt = c.WKT
	case IsWKT(crs):
		wkt = crs
	default:
		return err
	}

	err = atomic.WriteFile(path, strings.NewReader(wkt))

	if err != nil {
		return fmt.Errorf("Failed to write projection %s, %w", path, err)
	}

	return nil
}

func datasetShapeType(ds *Dataset) (shp.ShapeType, error) {

	var shape_type shp.ShapeType

	for _, f := range ds.Features {

		var t shp.ShapeType

		switch f.Geometry.(type) {
		case nil:
			continue
		case orb.Point:
			t = shp.POINT
		case orb.LineString, orb.MultiLineString:
			t = shp.POLYLINE
		case orb.Polygon, orb.MultiPolygon, orb.Collection:
			t = shp.POLYGON
		default:
			return 0, fmt.Errorf("%w: %s", ErrUnsupportedShape, f.Geometry.GeoJSONType())
		}

		if shape_type != 0 && shape_type != t {
			return 0, fmt.Errorf("%w: mixed geometry types", ErrUnsupportedShape)
		}

		shape_type = t
	}

	if shape_type == 0 {
		shape_type = shp.POLYGON
	}

	return shape_type, nil
}

func shapeToGeometry(shape shp.Shape) (orb.Geometry, error) {

	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PolyLine:

		parts := shapeParts(s.Parts, s.Points)

		if len(parts) == 1 {
			return orb.LineString(parts[0]), nil
		}

		mls := make(orb.MultiLineString, len(parts))

		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}

		return mls, nil

	case *shp.Polygon:
		return ringsToGeometry(shapeParts(s.Parts, s.Points)), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, shape)
	}
}

func shapeParts(parts []int32, points []shp.Point) [][]orb.Point {

	out := make([][]orb.Point, 0, len(parts))

	for i, start := range parts {

		end := len(points)

		if i+1 < len(parts) {
			end = int(parts[i+1])
		}

		part := make([]orb.Point, 0, end-int(start))

		for _, pt := range points[start:end] {
			part = append(part, orb.Point{pt.X, pt.Y})
		}

		out = append(out, part)
	}

	return out
}

// ringsToGeometry groups shapefile rings in to polygons. Outer rings are clockwise and every counter-clockwise
// ring is a hole of the outer ring before it.
func ringsToGeometry(parts [][]orb.Point) orb.Geometry {

	polygons := make(orb.MultiPolygon, 0)

	for _, p := range parts {

		ring := orb.Ring(p)

		if len(polygons) == 0 || ring.Orientation() == orb.CW {
			polygons = append(polygons, orb.Polygon{ring})
			continue
		}

		last := len(polygons) - 1
		polygons[last] = append(polygons[last], ring)
	}

	switch len(polygons) {
	case 0:
		return orb.Polygon{}
	case 1:
		return polygons[0]
	default:
		return polygons
	}
}

func geometryToShape(geom orb.Geometry, shape_type shp.ShapeType) shp.Shape {

	switch shape_type {
	case shp.POINT:

		pt, ok := geom.(orb.Point)

		if !ok {
			return &shp.Point{}
		}

		return &shp.Point{X: pt[0], Y: pt[1]}

	case shp.POLYLINE:

		lines := make([]orb.LineString, 0)

		switch g := geom.(type) {
		case orb.LineString:
			lines = append(lines, g)
		case orb.MultiLineString:
			lines = append(lines, g...)
		}

		parts := make([][]shp.Point, len(lines))

		for i, ls := range lines {
			parts[i] = toShpPoints(ls, false)
		}

		return newPolyLine(parts)

	default:

		parts := make([][]shp.Point, 0)

		for _, polygon := range Polygons(geom) {

			for i, ring := range polygon {

				// outer rings are clockwise, holes counter-clockwise
				want_cw := i == 0
				is_cw := ring.Orientation() == orb.CW

				parts = append(parts, toShpPoints(ring, want_cw != is_cw))
			}
		}

		if len(parts) == 0 {
			return &shp.Polygon{
				Parts:  []int32{},
				Points: []shp.Point{},
			}
		}

		poly := shp.Polygon(*newPolyLine(parts))
		return &poly
	}
}

func newPolyLine(parts [][]shp.Point) *shp.PolyLine {

	if len(parts) == 0 {
		return &shp.PolyLine{
			Parts:  []int32{},
			Points: []shp.Point{},
		}
	}

	return shp.NewPolyLine(parts)
}

func toShpPoints(points []orb.Point, reverse bool) []shp.Point {

	out := make([]shp.Point, len(points))

	for i, pt := range points {

		j := i

		if reverse {
			j = len(points) - 1 - i
		}

		out[j] = shp.Point{X: pt[0], Y: pt[1]}
	}

	return out
}
