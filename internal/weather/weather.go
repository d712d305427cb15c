// Package weather serves current conditions from the CWA automatic weather
// stations, resolved to the station nearest a caller.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// ErrNoStations is returned when the feed lists no usable station.
var ErrNoStations = errors.New("no weather stations available")

// Feed supplies station observations. *cwa.Client implements it.
type Feed interface {
	WeatherObservations(ctx context.Context) ([]domain.WeatherObservation, error)
}

// Nearest is the station closest to a query point.
type Nearest struct {
	Station    domain.WeatherObservation `json:"station"`
	DistanceKm float64                   `json:"distance_km"`
	WindLabel  string                    `json:"wind_direction_label,omitempty"`
}

// Service caches observations for ttl. Concurrent refreshes share one feed
// request. When a refresh fails the previous observations keep being served.
type Service struct {
	feed    Feed
	ttl     time.Duration
	clock   clockwork.Clock
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	stations []domain.WeatherObservation
	fetched  time.Time
}

// NewService creates a Service. A nil clock uses real time.
func NewService(feed Feed, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{feed: feed, ttl: ttl, clock: clock, metrics: metrics, logger: logger}
}

// Stations returns the cached observations, refreshing them once they are
// older than ttl.
func (s *Service) Stations(ctx context.Context) ([]domain.WeatherObservation, error) {
	s.mu.RLock()
	stations, fetched := s.stations, s.fetched
	s.mu.RUnlock()

	if !fetched.IsZero() && s.clock.Since(fetched) < s.ttl {
		s.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return stations, nil
	}

	v, err, _ := s.group.Do("stations", func() (any, error) {
		fresh, err := s.feed.WeatherObservations(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.stations, s.fetched = fresh, s.clock.Now()
		s.mu.Unlock()
		s.logger.Debug("weather observations refreshed", "stations", len(fresh))
		return fresh, nil
	})
	if err != nil {
		if fetched.IsZero() {
			return nil, fmt.Errorf("fetch weather observations: %w", err)
		}
		s.metrics.WeatherCache.WithLabelValues("stale").Inc()
		s.logger.Warn("weather refresh failed, serving previous observations",
			"error", err,
			"age", s.clock.Since(fetched),
		)
		return stations, nil
	}
	s.metrics.WeatherCache.WithLabelValues("refresh").Inc()
	return v.([]domain.WeatherObservation), nil
}

// Nearest returns the station closest to (lat, lon).
func (s *Service) Nearest(ctx context.Context, lat, lon float64) (Nearest, error) {
	stations, err := s.Stations(ctx)
	if err != nil {
		return Nearest{}, err
	}
	st, d, ok := domain.NearestStation(stations, lat, lon)
	if !ok {
		return Nearest{}, ErrNoStations
	}

	n := Nearest{Station: st, DistanceKm: d}
	if st.WindDirection != nil {
		n.WindLabel = domain.CompassPoint(*st.WindDirection)
	}
	return n, nil
}
