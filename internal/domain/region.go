package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultSiteFactor applies when a region carries no explicit amplification.
const DefaultSiteFactor = 1.0

// UnknownRegion is returned when a coordinate cannot be resolved to a district.
var UnknownRegion = RegionKey{County: "unknown", District: "unknown"}

// Coordinate represents a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RegionKey identifies a district within a county.
type RegionKey struct {
	County   string `json:"county"`
	District string `json:"district"`
}

// IsUnknown reports whether k is the UnknownRegion sentinel.
func (k RegionKey) IsUnknown() bool {
	return k == UnknownRegion
}

func (k RegionKey) String() string {
	return k.County + "/" + k.District
}

// RegionRecord is a gazetteer entry as read from a data source. Coordinates
// and site factor are optional so malformed entries can be detected.
type RegionRecord struct {
	County   string   `json:"county" yaml:"county"`
	District string   `json:"district" yaml:"district"`
	Lat      *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
	Site     *float64 `json:"site,omitempty" yaml:"site,omitempty"`
}

// Key returns the normalized region key for the record.
func (r RegionRecord) Key() RegionKey {
	return RegionKey{County: NormalizeName(r.County), District: NormalizeName(r.District)}
}

// Region is a validated gazetteer entry. Immutable once built.
type Region struct {
	RegionKey
	Coordinate
	SiteFactor float64 `json:"site_factor"`
}

// RegionFromRecord validates a record. It returns false when the record has
// no usable coordinates or names.
func RegionFromRecord(r RegionRecord) (Region, string, bool) {
	key := r.Key()
	switch {
	case key.County == "" || key.District == "":
		return Region{}, "missing county or district name", false
	case r.Lat == nil || r.Lon == nil:
		return Region{}, "missing coordinates", false
	case !validLatLon(*r.Lat, *r.Lon):
		return Region{}, "coordinates out of range", false
	}

	site := DefaultSiteFactor
	if r.Site != nil && *r.Site > 0 {
		site = *r.Site
	}
	return Region{
		RegionKey:  key,
		Coordinate: Coordinate{Lat: *r.Lat, Lon: *r.Lon},
		SiteFactor: site,
	}, "", true
}

// NormalizeName canonicalizes an administrative name for lookups: Unicode NFC,
// surrounding whitespace trimmed, and the variant "台" folded to "臺".
func NormalizeName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "台", "臺")
}
