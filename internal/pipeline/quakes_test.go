package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/pipeline"
)

var logNow = time.Date(2024, 4, 3, 6, 0, 0, 0, time.UTC) // 14:00 in Taiwan

func quakeAssessment(id string, age time.Duration, magnitude float64, reported int) domain.Assessment {
	return domain.Assessment{
		ID:           "a-" + id,
		QuakeID:      id,
		Source:       domain.SourceCWA,
		Epicenter:    domain.Epicenter{Lat: 23.8, Lon: 121.6, Magnitude: magnitude, Depth: 10},
		MaxIntensity: 1.5,
		Reported:     reported,
		OriginTime:   logNow.Add(-age),
	}
}

func quakeIDs(quakes []domain.QuakeSummary) []string {
	ids := make([]string, len(quakes))
	for i, q := range quakes {
		ids[i] = q.ID
	}
	return ids
}

func TestQuakeLog_ListNewestFirstWithFilters(t *testing.T) {
	log := pipeline.NewQuakeLog(10)
	require.NoError(t, log.LoadBatch(context.Background(), []domain.Assessment{
		quakeAssessment("week-old", 6*24*time.Hour, 5.2, 4),
		quakeAssessment("two-hours", 2*time.Hour, 4.7, 3),
		quakeAssessment("eight-hours", 8*time.Hour, 3.4, 2),
		quakeAssessment("two-months", 60*24*time.Hour, 6.1, 5),
	}))

	assert.Equal(t, []string{"two-hours", "eight-hours", "week-old", "two-months"}, quakeIDs(log.List(domain.QuakeFilter{})))

	today, err := domain.WindowStart(domain.WindowToday, logNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"two-hours", "eight-hours"}, quakeIDs(log.List(domain.QuakeFilter{Since: today})))

	week, err := domain.WindowStart(domain.WindowWeek, logNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"two-hours", "week-old"}, quakeIDs(log.List(domain.QuakeFilter{Since: week, MinMagnitude: 4})))

	assert.Equal(t, []string{"two-hours"}, quakeIDs(log.List(domain.QuakeFilter{Limit: 1})))
	assert.NotNil(t, log.List(domain.QuakeFilter{MinMagnitude: 9}), "empty result is a non-nil slice")
}

func TestQuakeLog_RedeliveryReplaces(t *testing.T) {
	log := pipeline.NewQuakeLog(10)
	log.Add(quakeAssessment("113019", time.Hour, 7.2, 0).Quake())
	log.Add(quakeAssessment("113019", time.Hour, 7.2, 6).Quake())

	got := log.List(domain.QuakeFilter{})
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].ReportedIntensity)
}

func TestQuakeLog_EvictsOldestOrigin(t *testing.T) {
	log := pipeline.NewQuakeLog(2)
	log.Add(quakeAssessment("newest", time.Hour, 4, 0).Quake())
	log.Add(quakeAssessment("oldest", 3*time.Hour, 4, 0).Quake())
	log.Add(quakeAssessment("middle", 2*time.Hour, 4, 0).Quake())

	assert.Equal(t, []string{"newest", "middle"}, quakeIDs(log.List(domain.QuakeFilter{})))
}

func TestQuakeLog_IgnoresAssessmentsWithoutQuake(t *testing.T) {
	log := pipeline.NewQuakeLog(5)
	require.NoError(t, log.LoadBatch(context.Background(), []domain.Assessment{{ID: "adhoc", Source: domain.SourceAPI}}))
	assert.Empty(t, log.List(domain.QuakeFilter{}))
}

func TestQuakeLog_Stats(t *testing.T) {
	log := pipeline.NewQuakeLog(10)
	require.NoError(t, log.LoadBatch(context.Background(), []domain.Assessment{
		quakeAssessment("two-hours", 2*time.Hour, 4.7, 3),
		quakeAssessment("eight-hours", 8*time.Hour, 3.4, 2),
		quakeAssessment("yesterday", 24*time.Hour, 5.2, 4),
	}))

	stats := log.Stats(logNow)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Today)
	assert.Equal(t, 4.0, stats.MaxIntensity)
}
