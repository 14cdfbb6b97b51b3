package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnsupportedCRS is returned for coordinate reference systems that are not in the CRS table.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

// CRS describes a coordinate reference system this package can write.
type CRS struct {
	// Code is the EPSG code.
	Code int
	// Name is the ESRI name.
	Name string
	// Aliases are other names the CRS is known by.
	Aliases []string
	// WKT is the ESRI flavoured WKT written to .prj files.
	WKT string
	// Geographic is true for latitude/longitude systems.
	Geographic bool
	// MetresPerUnit converts linear units to metres. Zero for geographic systems.
	MetresPerUnit float64
}

// Identifier returns the "EPSG:<code>" form of the CRS.
func (c *CRS) Identifier() string {
	return fmt.Sprintf("EPSG:%d", c.Code)
}

// URN returns the OGC URN used in GeoJSON "crs" members.
func (c *CRS) URN() string {
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", c.Code)
}

const gcs_nad83 = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const gcs_wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const utm_16n_params = `PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-87.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]`

var crs_table = []*CRS{
	{
		Code:          26916,
		Name:          "NAD_1983_UTM_Zone_16N",
		Aliases:       []string{"NAD 1983 UTM Zone 16N", "NAD83 / UTM zone 16N"},
		WKT:           `PROJCS["NAD_1983_UTM_Zone_16N",` + gcs_nad83 + `,` + utm_16n_params + `]`,
		MetresPerUnit: 1.0,
	},
	{
		Code:          32616,
		Name:          "WGS_1984_UTM_Zone_16N",
		Aliases:       []string{"WGS 1984 UTM Zone 16N", "WGS 84 / UTM zone 16N"},
		WKT:           `PROJCS["WGS_1984_UTM_Zone_16N",` + gcs_wgs84 + `,` + utm_16n_params + `]`,
		MetresPerUnit: 1.0,
	},
	{
		Code:       4269,
		Name:       "GCS_North_American_1983",
		Aliases:    []string{"NAD83", "NAD 1983"},
		WKT:        gcs_nad83,
		Geographic: true,
	},
	{
		Code:       4326,
		Name:       "GCS_WGS_1984",
		Aliases:    []string{"WGS84", "WGS 84", "WGS 1984"},
		WKT:        gcs_wgs84,
		Geographic: true,
	},
}

var re_epsg = regexp.MustCompile(`(?i)^(?:epsg:|urn:ogc:def:crs:epsg:[0-9.]*:)?(\d+)$`)

var re_wkt_name = regexp.MustCompile(`^(?:PROJCS|GEOGCS)\["([^"]+)"`)

// LookupCRS resolves an identifier to a CRS. Accepted forms are "EPSG:26916", a bare EPSG code, an OGC
// URN, an ESRI name or alias ("NAD 1983 UTM Zone 16N") and the WKT found in a .prj file.
func LookupCRS(id string) (*CRS, error) {

	id = strings.TrimSpace(id)

	if m := re_epsg.FindStringSubmatch(id); m != nil {

		code, err := strconv.Atoi(m[1])

		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, id)
		}

		for _, c := range crs_table {

			if c.Code == code {
				return c, nil
			}
		}

		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, id)
	}

	name := id

	if m := re_wkt_name.FindStringSubmatch(id); m != nil {
		name = m[1]
	}

	normalized := normalizeCRSName(name)

	for _, c := range crs_table {

		if normalizeCRSName(c.Name) == normalized {
			return c, nil
		}

		for _, a := range c.Aliases {

			if normalizeCRSName(a) == normalized {
				return c, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, id)
}

// IsWKT reports whether s looks like a WKT coordinate system definition.
func IsWKT(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "PROJCS[") || strings.HasPrefix(s, "GEOGCS[")
}

func normalizeCRSName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}
