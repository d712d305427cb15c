package domain

import (
	"errors"
	"fmt"
	"time"
)

// Named quake-list windows.
const (
	WindowAll   = "all"
	WindowToday = "today"
	WindowWeek  = "week"
	WindowMonth = "month"
)

// ErrInvalidWindow is returned for a time window that is neither a named
// window nor an RFC 3339 timestamp.
var ErrInvalidWindow = errors.New("invalid time window")

// QuakeSummary is one entry of the quake list: the quake as reported plus the
// headline figures of its assessment.
type QuakeSummary struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	OriginTime        time.Time `json:"origin_time"`
	Location          string    `json:"location,omitempty"`
	Epicenter         Epicenter `json:"epicenter"`
	ReportedIntensity int       `json:"reported_intensity,omitempty"`
	EstimatedMax      float64   `json:"estimated_max_intensity"`
	Affected          int       `json:"affected"`
}

// Quake summarizes the quake an assessment was built for.
func (a Assessment) Quake() QuakeSummary {
	return QuakeSummary{
		ID:                a.QuakeID,
		Source:            a.Source,
		OriginTime:        a.OriginTime,
		Location:          a.Location,
		Epicenter:         a.Epicenter,
		ReportedIntensity: a.Reported,
		EstimatedMax:      a.MaxIntensity,
		Affected:          len(a.Affected),
	}
}

// Intensity is the feed-reported maximum level, or the estimated maximum
// when the feed reported none.
func (q QuakeSummary) Intensity() float64 {
	if q.ReportedIntensity > 0 {
		return float64(q.ReportedIntensity)
	}
	return q.EstimatedMax
}

// QuakeFilter selects quake-list entries. The zero value matches everything.
type QuakeFilter struct {
	Since        time.Time
	MinMagnitude float64
	Limit        int // 0 means no limit
}

// Match reports whether q originated at or after Since with a magnitude of
// at least MinMagnitude.
func (f QuakeFilter) Match(q QuakeSummary) bool {
	return !q.OriginTime.Before(f.Since) && q.Epicenter.Magnitude >= f.MinMagnitude
}

// WindowStart resolves a quake-list window to its inclusive lower bound.
// "today" starts at midnight Taiwan time, "week" reaches back seven days and
// "month" one calendar month. Any other value must be an RFC 3339 timestamp.
// "all" and "" yield the zero time.
func WindowStart(window string, now time.Time) (time.Time, error) {
	switch window {
	case "", WindowAll:
		return time.Time{}, nil
	case WindowToday:
		return StartOfDay(now), nil
	case WindowWeek:
		return now.AddDate(0, 0, -7), nil
	case WindowMonth:
		return now.AddDate(0, -1, 0), nil
	}
	t, err := time.Parse(time.RFC3339, window)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}
	return t, nil
}

// StartOfDay returns midnight of t's calendar day in Taiwan.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(Taipei).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Taipei)
}

// QuakeStats is the daily overview of the quake list.
type QuakeStats struct {
	Total        int       `json:"total"`
	Today        int       `json:"today"`
	DayStart     time.Time `json:"day_start"`
	MaxIntensity float64   `json:"max_intensity"`
}

// SummarizeQuakes counts the quakes that originated today in Taiwan and finds
// the highest intensity across all of them.
func SummarizeQuakes(quakes []QuakeSummary, now time.Time) QuakeStats {
	stats := QuakeStats{Total: len(quakes), DayStart: StartOfDay(now)}
	for _, q := range quakes {
		if !q.OriginTime.Before(stats.DayStart) {
			stats.Today++
		}
		stats.MaxIntensity = max(stats.MaxIntensity, q.Intensity())
	}
	return stats
}
