package estimator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

var fixedNow = time.Date(2026, 4, 3, 7, 58, 9, 0, time.UTC)

func newTestAssessor(t *testing.T) (*Assessor, *observability.Metrics) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(fixedNow))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	store := gazetteer.NewStaticStore(gazetteer.Builtin(), logger, metrics)
	return NewAssessor(store, DefaultOptions(), logger, metrics), metrics
}

func TestAssess_DrillAtHualienCity(t *testing.T) {
	a, metrics := newTestAssessor(t)
	user := &UserLocation{Coordinate: &domain.Coordinate{Lat: 23.98, Lon: 121.60}}

	got, err := a.Assess(context.Background(), Drill(user))
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "drill-1775203089", got.QuakeID)
	assert.Equal(t, domain.SourceDrill, got.Source)
	assert.Equal(t, fixedNow, got.AssessedAt)
	assert.Equal(t, fixedNow, got.OriginTime)
	assert.Equal(t, 29, got.Intensities.Len())
	assert.Equal(t, 2.8, got.MaxIntensity)
	assert.Equal(t, domain.DefaultAffectedThreshold, got.Threshold)
	assert.Empty(t, got.Affected)

	require.NotNil(t, got.Personal)
	assert.True(t, got.Personal.Resolved)
	assert.Equal(t, domain.RegionKey{County: "花蓮縣", District: "花蓮市"}, got.Personal.Region)
	assert.Equal(t, 2.8, got.Personal.Intensity)
	assert.Equal(t, domain.TierWarning, got.Personal.Tier)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Assessments.WithLabelValues("drill", "warning")))
}

func TestAssess_ThresholdOverride(t *testing.T) {
	a, _ := newTestAssessor(t)
	req := Drill(nil)
	req.Threshold = ptr(1.8)

	got, err := a.Assess(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, got.Affected, 4)
	assert.Equal(t, domain.AffectedArea{County: "花蓮縣", District: "花蓮市", Intensity: 2.8}, got.Affected[0])
	for i := 1; i < len(got.Affected); i++ {
		assert.GreaterOrEqual(t, got.Affected[i-1].Intensity, got.Affected[i].Intensity)
	}
	assert.Nil(t, got.Personal)
}

func TestAssess_UserByRegionName(t *testing.T) {
	a, _ := newTestAssessor(t)
	req := Drill(&UserLocation{Region: &domain.RegionKey{County: "台北市", District: "信義區"}})

	got, err := a.Assess(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, got.Personal)
	assert.Equal(t, domain.RegionKey{County: "臺北市", District: "信義區"}, got.Personal.Region)
	assert.Equal(t, 1.5, got.Personal.Intensity)
	assert.Equal(t, domain.TierSafe, got.Personal.Tier)
}

func TestAssess_UnknownUserRegion(t *testing.T) {
	a, _ := newTestAssessor(t)
	req := Drill(&UserLocation{Region: &domain.RegionKey{County: "澎湖縣", District: "馬公市"}})

	got, err := a.Assess(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, got.Personal)
	assert.False(t, got.Personal.Resolved)
	assert.Equal(t, domain.UnknownRegion, got.Personal.Region)
	assert.Zero(t, got.Personal.Intensity)
	assert.Equal(t, domain.TierSafe, got.Personal.Tier)
}

func TestAssess_DefaultSourceIsAPI(t *testing.T) {
	a, _ := newTestAssessor(t)

	got, err := a.Assess(context.Background(), AssessRequest{Epicenter: hualienOffshore})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAPI, got.Source)
}

func TestAssess_InvalidEpicenter(t *testing.T) {
	a, _ := newTestAssessor(t)

	_, err := a.Assess(context.Background(), AssessRequest{Epicenter: domain.Epicenter{Lat: 24, Lon: 200, Magnitude: 5}})
	assert.ErrorIs(t, err, domain.ErrInvalidEpicenter)
}

func TestAssess_WaitsForGazetteer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	store := gazetteer.NewStore(gazetteer.BuiltinSource{}, logger, metrics)
	a := NewAssessor(store, DefaultOptions(), logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Assess(ctx, Drill(nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	store.Load(context.Background())
	got, err := a.Assess(context.Background(), Drill(nil))
	require.NoError(t, err)
	assert.Equal(t, 29, got.Intensities.Len())
}

func TestResolveUser(t *testing.T) {
	a, _ := newTestAssessor(t)

	key, err := a.ResolveUser(context.Background(), UserLocation{Coordinate: &domain.Coordinate{Lat: 25.03, Lon: 121.56}})
	require.NoError(t, err)
	assert.Equal(t, domain.RegionKey{County: "臺北市", District: "信義區"}, key)

	key, err = a.ResolveUser(context.Background(), UserLocation{})
	require.NoError(t, err)
	assert.True(t, key.IsUnknown())
}
