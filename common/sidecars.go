package common

import (
	"path/filepath"
	"strings"
)

// shapefile_sidecars are the companion files an ESRI shapefile may carry, in the order they are
// fingerprinted, copied and removed.
var shapefile_sidecars = []string{
	".shx",
	".dbf",
	".prj",
	".cpg",
	".sbn",
	".sbx",
	".shp.xml",
}

// DatasetKeys returns key followed by every companion file a dataset stored at key may have. Only
// shapefiles have companions; for any other extension the result is just key. Callers are expected to
// check which of the returned keys actually exist.
func DatasetKeys(key string) []string {

	keys := []string{key}

	ext := filepath.Ext(key)

	if !strings.EqualFold(ext, ".shp") {
		return keys
	}

	root := strings.TrimSuffix(key, ext)

	for _, sidecar := range shapefile_sidecars {

		// preserve upper-case extensions (FOO.SHP, FOO.DBF) written by some tools
		if ext == ".SHP" {
			sidecar = strings.ToUpper(sidecar)
		}

		keys = append(keys, root+sidecar)
	}

	return keys
}
