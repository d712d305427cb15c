package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestStation(t *testing.T) {
	stations := []WeatherObservation{
		{StationID: "466920", StationName: "臺北", Lat: 25.0377, Lon: 121.5149},
		{StationID: "466990", StationName: "花蓮", Lat: 23.9751, Lon: 121.6133},
		{StationID: "467660", StationName: "臺東", Lat: 22.7522, Lon: 121.1546},
	}

	s, d, ok := NearestStation(stations, 24.0, 121.6)
	assert.True(t, ok)
	assert.Equal(t, "花蓮", s.StationName)
	assert.InDelta(t, GreatCircleDistanceKm(24.0, 121.6, 23.9751, 121.6133), d, 1e-9)

	s, _, ok = NearestStation(stations, 25.03, 121.56)
	assert.True(t, ok)
	assert.Equal(t, "臺北", s.StationName)
}

func TestNearestStation_Empty(t *testing.T) {
	_, _, ok := NearestStation(nil, 25, 121)
	assert.False(t, ok)
}

func TestCompassPoint(t *testing.T) {
	tests := map[float64]string{
		0:   "北",
		44:  "東北",
		90:  "東",
		200: "南",
		315: "西北",
		350: "北",
		-1:  "無風",
	}
	for deg, want := range tests {
		assert.Equal(t, want, CompassPoint(deg), "%g°", deg)
	}
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(25, 121))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(91, 121))
	assert.False(t, ValidCoordinate(25, -181))
	assert.False(t, ValidCoordinate(math.NaN(), 121))
	assert.False(t, ValidCoordinate(25, math.Inf(1)))
}
