// Package estimator turns an epicenter into district-level intensity
// estimates over a gazetteer.
package estimator

import (
	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// RegionSource supplies the districts to estimate. *gazetteer.Gazetteer
// implements it.
type RegionSource interface {
	Regions() []domain.Region
}

// BuildIntensityMap estimates intensity, rounded to one decimal, for every
// district in src. The result has exactly one entry per district. An invalid
// epicenter or an empty source yields an empty map.
func BuildIntensityMap(src RegionSource, ep domain.Epicenter) domain.IntensityMap {
	m := domain.IntensityMap{}
	if src == nil || ep.Validate() != nil {
		return m
	}

	for _, r := range src.Regions() {
		distance := domain.GreatCircleDistanceKm(ep.Lat, ep.Lon, r.Lat, r.Lon)
		intensity := domain.EstimateIntensity(ep.Magnitude, distance, ep.Depth, r.SiteFactor)
		m.Set(r.RegionKey, domain.RoundTenth(intensity))
	}
	return m
}
