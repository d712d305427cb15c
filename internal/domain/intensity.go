package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
	EarthRadiusKm = 6371.0

	// MinDistanceKm floors epicentral distance before the log term.
	MinDistanceKm = 5.0

	// DistanceCoefficient scales log10(distance) in the attenuation law.
	DistanceCoefficient = 2.0

	// DepthCoefficient is the linear attenuation per kilometre of focal depth.
	DepthCoefficient = 0.0045

	// DefaultAffectedThreshold is the intensity at or above which a district
	// is listed as affected.
	DefaultAffectedThreshold = 3.0

	// Accepted magnitude and depth ranges. Recorded quakes fall well inside
	// them; values outside are treated as corrupt input.
	MinMagnitude = -2.0
	MaxMagnitude = 10.0
	MaxDepthKm   = 1000.0
)

// ErrInvalidEpicenter is returned for epicenters that cannot be estimated.
var ErrInvalidEpicenter = errors.New("invalid epicenter")

// Epicenter is the input to an estimation: where the quake originated and
// how large and deep it was.
type Epicenter struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Magnitude float64 `json:"magnitude"`
	Depth     float64 `json:"depth"` // km
}

// Validate checks that all values are finite, coordinates are in range,
// magnitude is within [MinMagnitude, MaxMagnitude] and depth within
// [0, MaxDepthKm].
func (e Epicenter) Validate() error {
	for _, v := range []float64{e.Lat, e.Lon, e.Magnitude, e.Depth} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidEpicenter)
		}
	}
	if !validLatLon(e.Lat, e.Lon) {
		return fmt.Errorf("%w: coordinates (%g, %g) out of range", ErrInvalidEpicenter, e.Lat, e.Lon)
	}
	if e.Magnitude < MinMagnitude || e.Magnitude > MaxMagnitude {
		return fmt.Errorf("%w: magnitude %g out of range", ErrInvalidEpicenter, e.Magnitude)
	}
	if e.Depth < 0 || e.Depth > MaxDepthKm {
		return fmt.Errorf("%w: depth %g out of range", ErrInvalidEpicenter, e.Depth)
	}
	return nil
}

// GreatCircleDistanceKm returns the Haversine distance in kilometres between
// two WGS-84 points.
func GreatCircleDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// EstimateIntensity applies the attenuation law. The clamp applies to the base
// value before the site factor is multiplied in, so a negative base stays zero.
func EstimateIntensity(magnitude, distanceKm, depthKm, siteFactor float64) float64 {
	base := magnitude - DistanceCoefficient*math.Log10(math.Max(distanceKm, MinDistanceKm)) - DepthCoefficient*depthKm
	return math.Max(0, base) * siteFactor
}

// RoundTenth rounds half-up to one decimal place.
func RoundTenth(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// IntensityMap holds estimated intensity per county and district.
type IntensityMap map[string]map[string]float64

// Set stores an intensity, creating the county entry when needed.
func (m IntensityMap) Set(key RegionKey, intensity float64) {
	districts, ok := m[key.County]
	if !ok {
		districts = make(map[string]float64)
		m[key.County] = districts
	}
	districts[key.District] = intensity
}

// Lookup returns the intensity for a district, if present.
func (m IntensityMap) Lookup(key RegionKey) (float64, bool) {
	districts, ok := m[key.County]
	if !ok {
		return 0, false
	}
	v, ok := districts[key.District]
	return v, ok
}

// Len returns the number of districts in the map.
func (m IntensityMap) Len() int {
	n := 0
	for _, districts := range m {
		n += len(districts)
	}
	return n
}

// Max returns the highest intensity in the map, or 0 for an empty map.
func (m IntensityMap) Max() float64 {
	highest := 0.0
	for _, districts := range m {
		for _, v := range districts {
			highest = math.Max(highest, v)
		}
	}
	return highest
}

// Keys returns every district key, ordered by county then district.
func (m IntensityMap) Keys() []RegionKey {
	keys := make([]RegionKey, 0, m.Len())
	for county, districts := range m {
		for district := range districts {
			keys = append(keys, RegionKey{County: county, District: district})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].County != keys[j].County {
			return keys[i].County < keys[j].County
		}
		return keys[i].District < keys[j].District
	})
	return keys
}

// AffectedArea is one district at or above the affected threshold.
type AffectedArea struct {
	County    string  `json:"county"`
	District  string  `json:"district"`
	Intensity float64 `json:"intensity"`
}

// AffectedAreas lists districts with intensity >= threshold, highest first.
// Equal intensities keep key order (county, then district).
func AffectedAreas(m IntensityMap, threshold float64) []AffectedArea {
	areas := make([]AffectedArea, 0)
	for _, key := range m.Keys() {
		v := m[key.County][key.District]
		if v >= threshold {
			areas = append(areas, AffectedArea{County: key.County, District: key.District, Intensity: v})
		}
	}
	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].Intensity > areas[j].Intensity
	})
	return areas
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

func validLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
