package dataset

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type fieldState struct {
	index      int
	saw_number bool
	saw_other  bool
}

func readGeoJSON(path string) (*Dataset, error) {

	body, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse feature collection %s, %w", path, err)
	}

	ds := &Dataset{
		Fields:   make([]Field, 0),
		Features: make([]*Feature, 0, len(fc.Features)),
	}

	// orb decodes properties in to a map so walk the raw document to recover the field order,
	// and to work out which fields are consistently numeric

	states := make(map[string]*fieldState)

	gjson.GetBytes(body, "features").ForEach(func(_, feature gjson.Result) bool {

		feature.Get("properties").ForEach(func(key, value gjson.Result) bool {

			name := key.String()
			st, ok := states[name]

			if !ok {
				st = &fieldState{index: len(ds.Fields)}
				states[name] = st
				ds.Fields = append(ds.Fields, Field{Name: name})
			}

			switch value.Type {
			case gjson.Null:
				// pass
			case gjson.Number:
				st.saw_number = true
			default:
				st.saw_other = true
			}

			return true
		})

		return true
	})

	for _, st := range states {

		if st.saw_number && !st.saw_other {
			ds.Fields[st.index].Type = FieldNumber
		} else {
			ds.Fields[st.index].Type = FieldString
		}
	}

	for _, f := range fc.Features {

		feature := NewFeature(f.Geometry)

		for k, v := range f.Properties {
			feature.Properties[k] = v
		}

		ds.Features = append(ds.Features, feature)
	}

	crs_rsp := gjson.GetBytes(body, "crs.properties.name")

	if crs_rsp.Exists() {

		crs, err := LookupCRS(crs_rsp.String())

		if err == nil {
			ds.CRS = crs.Identifier()
		} else {
			ds.CRS = crs_rsp.String()
		}
	}

	return ds, nil
}

func writeGeoJSON(path string, ds *Dataset) error {

	fc := geojson.NewFeatureCollection()

	for _, f := range ds.Features {

		gf := geojson.NewFeature(f.Geometry)

		for k, v := range f.Properties {
			gf.Properties[k] = v
		}

		fc.Append(gf)
	}

	body, err := fc.MarshalJSON()

	if err != nil {
		return fmt.Errorf("Failed to marshal feature collection for %s, %w", path, err)
	}

	if ds.CRS != "" {

		crs, err := LookupCRS(ds.CRS)

		if err != nil {
			return fmt.Errorf("Failed to assign CRS to %s, %w", path, err)
		}

		named_crs := map[string]interface{}{
			"type": "name",
			"properties": map[string]interface{}{
				"name": crs.URN(),
			},
		}

		body, err = sjson.SetBytes(body, "crs", named_crs)

		if err != nil {
			return fmt.Errorf("Failed to set crs property for %s, %w", path, err)
		}
	}

	err = atomic.WriteFile(path, bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("Failed to write %s, %w", path, err)
	}

	return nil
}
