// Package dataset reads and writes the vector datasets the ForestSim scorecard exports: an ordered set of
// features (an orb.Geometry plus attribute properties), the attribute field definitions and the
// coordinate reference system. ESRI shapefiles and GeoJSON FeatureCollections are supported.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ErrUnsupportedFormat is returned for filename extensions this package can not read or write.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// FieldType is the storage type of an attribute field.
type FieldType int

const (
	FieldNumber FieldType = iota
	FieldString
)

// Field describes one attribute field. Size and Precision follow dBASE semantics and are only
// meaningful for shapefiles.
type Field struct {
	Name      string
	Type      FieldType
	Size      uint8
	Precision uint8
}

// DoubleField returns the definition ArcGIS uses for a "double" field.
func DoubleField(name string) Field {
	return Field{
		Name:      name,
		Type:      FieldNumber,
		Size:      19,
		Precision: 11,
	}
}

// ShortField returns the definition ArcGIS uses for a "short" integer field.
func ShortField(name string) Field {
	return Field{
		Name: name,
		Type: FieldNumber,
		Size: 6,
	}
}

// Feature is a single geometry and its attributes. Geometry may be nil.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// NewFeature returns a Feature with an empty property map.
func NewFeature(geom orb.Geometry) *Feature {
	return &Feature{
		Geometry:   geom,
		Properties: make(map[string]interface{}),
	}
}

// Value returns the property called name. The lookup is case-sensitive first, then case-insensitive,
// since dBASE field names are frequently upper-cased by the tools that write them.
func (f *Feature) Value(name string) (interface{}, bool) {

	v, ok := f.Properties[name]

	if ok {
		return v, true
	}

	for k, v := range f.Properties {

		if strings.EqualFold(k, name) {
			return v, true
		}
	}

	return nil, false
}

// Float returns the property called name as a float64. String values are parsed; missing, null or
// unparseable values return false.
func (f *Feature) Float(name string) (float64, bool) {

	v, ok := f.Value(name)

	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:

		fl, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		if err != nil {
			return 0, false
		}

		return fl, true
	default:
		return 0, false
	}
}

// Set assigns a property, reusing the existing key if one matches name case-insensitively.
func (f *Feature) Set(name string, value interface{}) {

	for k := range f.Properties {

		if strings.EqualFold(k, name) {
			f.Properties[k] = value
			return
		}
	}

	f.Properties[name] = value
}

// Dataset is an in-memory vector dataset.
type Dataset struct {
	// CRS is a coordinate reference system identifier (see LookupCRS), the raw WKT of an unrecognized
	// projection or "" if the dataset has none.
	CRS      string
	Fields   []Field
	Features []*Feature
}

// New returns an empty Dataset with the same fields and CRS as d.
func (d *Dataset) New() *Dataset {

	fields := make([]Field, len(d.Fields))
	copy(fields, d.Fields)

	return &Dataset{
		CRS:      d.CRS,
		Fields:   fields,
		Features: make([]*Feature, 0),
	}
}

// FieldIndex returns the index of the field called name (case-insensitive) or -1.
func (d *Dataset) FieldIndex(name string) int {

	for i, f := range d.Fields {

		if strings.EqualFold(f.Name, name) {
			return i
		}
	}

	return -1
}

// EnsureField adds f unless a field with the same name already exists. Existing fields keep their
// definition, the same way ArcGIS' AddField leaves an existing field alone.
func (d *Dataset) EnsureField(f Field) {

	if d.FieldIndex(f.Name) != -1 {
		return
	}

	d.Fields = append(d.Fields, f)
}

// Read loads the dataset at path, choosing the format from the filename extension.
func Read(path string) (*Dataset, error) {

	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return readShapefile(path)
	case ".geojson", ".json":
		return readGeoJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Write stores ds at path, replacing any existing dataset, choosing the format from the filename
// extension.
func Write(path string, ds *Dataset) error {

	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return writeShapefile(path, ds)
	case ".geojson", ".json":
		return writeGeoJSON(path, ds)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Polygons flattens a geometry to its polygonal parts. Geometry collections (which GEOS produces when
// repairing self-intersecting input) are searched recursively; points and lines are dropped.
func Polygons(geom orb.Geometry) []orb.Polygon {

	polygons := make([]orb.Polygon, 0)

	switch g := geom.(type) {
	case orb.Polygon:
		polygons = append(polygons, g)
	case orb.MultiPolygon:
		polygons = append(polygons, g...)
	case orb.Collection:

		for _, child := range g {
			polygons = append(polygons, Polygons(child)...)
		}
	}

	return polygons
}
