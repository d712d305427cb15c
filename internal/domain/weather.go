package domain

import (
	"math"
	"time"
)

// WeatherObservation is the latest reading of one automatic weather station.
// Readings the station did not report are nil.
type WeatherObservation struct {
	StationID        string    `json:"station_id"`
	StationName      string    `json:"station_name"`
	County           string    `json:"county"`
	Town             string    `json:"town"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	ObservedAt       time.Time `json:"observed_at"`
	Weather          string    `json:"weather,omitempty"`
	AirTemperature   *float64  `json:"air_temperature,omitempty"`   // °C
	RelativeHumidity *float64  `json:"relative_humidity,omitempty"` // %
	WindSpeed        *float64  `json:"wind_speed,omitempty"`        // m/s
	WindDirection    *float64  `json:"wind_direction,omitempty"`    // degrees
	Precipitation    *float64  `json:"precipitation,omitempty"`     // mm since midnight
}

// NearestStation returns the observation closest to (lat, lon) and its
// distance in km. The first minimum in slice order wins. It returns false
// when stations is empty.
func NearestStation(stations []WeatherObservation, lat, lon float64) (WeatherObservation, float64, bool) {
	best := -1
	minDistance := math.Inf(1)
	for i, s := range stations {
		if d := GreatCircleDistanceKm(lat, lon, s.Lat, s.Lon); d < minDistance {
			best, minDistance = i, d
		}
	}
	if best < 0 {
		return WeatherObservation{}, 0, false
	}
	return stations[best], minDistance, true
}

var compassPoints = [...]string{"北", "東北", "東", "東南", "南", "西南", "西", "西北"}

// CompassPoint names a wind direction in degrees by the nearest of the eight
// compass points. Negative angles mean calm.
func CompassPoint(degrees float64) string {
	if degrees < 0 {
		return "無風"
	}
	i := int(math.Round(degrees/45)) % len(compassPoints)
	return compassPoints[i]
}

// ValidCoordinate reports whether lat and lon are finite and in range.
func ValidCoordinate(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && validLatLon(lat, lon)
}
