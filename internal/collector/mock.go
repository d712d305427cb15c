package collector

import (
	"time"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// MockReports returns the canned felt reports published when the feed is
// unreachable and Options.MockFallback is set, newest first. Origin times are
// relative to now. IDs are fixed, so each is published once per process.
func MockReports(now time.Time) []domain.QuakeReport {
	return []domain.QuakeReport{
		{
			ID:           "mock-1",
			OriginTime:   now.Add(-2 * time.Hour),
			Epicenter:    domain.Epicenter{Lat: 24.1278, Lon: 121.6578, Magnitude: 4.7, Depth: 15.2},
			Location:     "花蓮縣秀林鄉",
			MaxIntensity: 3,
			Content:      "花蓮縣秀林鄉發生規模4.7有感地震，最大震度3級。",
		},
		{
			ID:           "mock-2",
			OriginTime:   now.Add(-8 * time.Hour),
			Epicenter:    domain.Epicenter{Lat: 24.4611, Lon: 121.7951, Magnitude: 3.4, Depth: 10.5},
			Location:     "宜蘭縣南澳鄉",
			MaxIntensity: 2,
			Content:      "宜蘭縣南澳鄉發生規模3.4有感地震，最大震度2級。",
		},
		{
			ID:           "mock-3",
			OriginTime:   now.Add(-24 * time.Hour),
			Epicenter:    domain.Epicenter{Lat: 23.1, Lon: 121.3667, Magnitude: 5.2, Depth: 18.7},
			Location:     "臺東縣成功鎮",
			MaxIntensity: 4,
			Content:      "臺東縣成功鎮發生規模5.2有感地震，最大震度4級。",
		},
	}
}
