// Package gazetteer holds the administrative-region reference table used to
// place epicenters and users on the map.
//
// A *Gazetteer is immutable and always fully loaded: the only constructor is
// New, which validates every record up front. Callers that need to wait for a
// dataset to become available go through Store.
package gazetteer

import (
	"math"
	"sync/atomic"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

var versions atomic.Uint64

// SkippedEntry is a record excluded from the gazetteer.
type SkippedEntry struct {
	County   string `json:"county"`
	District string `json:"district"`
	Reason   string `json:"reason"`
}

// Diagnostics reports data-quality problems found while building a gazetteer.
type Diagnostics struct {
	Skipped []SkippedEntry `json:"skipped"`
}

// Gazetteer is a read-only set of districts, in source order.
type Gazetteer struct {
	regions []domain.Region
	index   map[domain.RegionKey]int
	version uint64
}

// New builds a gazetteer from raw records. Entries without usable coordinates
// and repeated (county, district) pairs are skipped and listed in Diagnostics;
// the first occurrence of a duplicate wins.
func New(records []domain.RegionRecord) (*Gazetteer, Diagnostics) {
	g := &Gazetteer{
		regions: make([]domain.Region, 0, len(records)),
		index:   make(map[domain.RegionKey]int, len(records)),
		version: versions.Add(1),
	}
	var diag Diagnostics

	for _, rec := range records {
		region, reason, ok := domain.RegionFromRecord(rec)
		if !ok {
			diag.Skipped = append(diag.Skipped, SkippedEntry{County: rec.County, District: rec.District, Reason: reason})
			continue
		}
		if _, dup := g.index[region.RegionKey]; dup {
			diag.Skipped = append(diag.Skipped, SkippedEntry{County: rec.County, District: rec.District, Reason: "duplicate district"})
			continue
		}
		g.index[region.RegionKey] = len(g.regions)
		g.regions = append(g.regions, region)
	}

	return g, diag
}

// Regions returns a copy of every district in source order.
func (g *Gazetteer) Regions() []domain.Region {
	out := make([]domain.Region, len(g.regions))
	copy(out, g.regions)
	return out
}

// Len returns the number of districts.
func (g *Gazetteer) Len() int {
	return len(g.regions)
}

// Version identifies this gazetteer instance. Every call to New yields a new
// version, so caches keyed on it never serve results from a replaced dataset.
func (g *Gazetteer) Version() uint64 {
	return g.version
}

// Counties returns county names in first-seen order.
func (g *Gazetteer) Counties() []string {
	seen := make(map[string]bool)
	var counties []string
	for _, r := range g.regions {
		if !seen[r.County] {
			seen[r.County] = true
			counties = append(counties, r.County)
		}
	}
	return counties
}

// NearestRegion returns the district whose reference point is closest to the
// given coordinate, and the distance to it in km. The first minimum in source
// order wins. It returns domain.UnknownRegion and false only when the
// gazetteer is empty.
func (g *Gazetteer) NearestRegion(lat, lon float64) (domain.RegionKey, float64, bool) {
	nearest := domain.UnknownRegion
	minDistance := math.Inf(1)
	for _, r := range g.regions {
		d := domain.GreatCircleDistanceKm(lat, lon, r.Lat, r.Lon)
		if d < minDistance {
			minDistance = d
			nearest = r.RegionKey
		}
	}
	if nearest.IsUnknown() {
		return domain.UnknownRegion, 0, false
	}
	return nearest, minDistance, true
}

// Lookup returns the district for an exact (county, district) pair. Names are
// normalized first, so "台東縣" finds "臺東縣".
func (g *Gazetteer) Lookup(county, district string) (domain.Region, bool) {
	i, ok := g.index[domain.RegionKey{County: domain.NormalizeName(county), District: domain.NormalizeName(district)}]
	if !ok {
		return domain.Region{}, false
	}
	return g.regions[i], true
}

// CoordinatesOf returns the reference point of a district.
func (g *Gazetteer) CoordinatesOf(county, district string) (domain.Coordinate, bool) {
	r, ok := g.Lookup(county, district)
	if !ok {
		return domain.Coordinate{}, false
	}
	return r.Coordinate, true
}

// SiteFactorOf returns a district's amplification factor, or
// domain.DefaultSiteFactor when the district is unknown.
func (g *Gazetteer) SiteFactorOf(county, district string) float64 {
	r, ok := g.Lookup(county, district)
	if !ok {
		return domain.DefaultSiteFactor
	}
	return r.SiteFactor
}
