package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// Options tunes an Assessor.
type Options struct {
	AffectedThreshold float64
	Tiers             domain.TierThresholds
}

// DefaultOptions uses the dashboard thresholds.
func DefaultOptions() Options {
	return Options{
		AffectedThreshold: domain.DefaultAffectedThreshold,
		Tiers:             domain.DefaultTierThresholds,
	}
}

// UserLocation identifies the user for personal risk. Region takes
// precedence over Coordinate when both are set.
type UserLocation struct {
	Coordinate *domain.Coordinate `json:"coordinate,omitempty"`
	Region     *domain.RegionKey  `json:"region,omitempty"`
}

// AssessRequest is one estimation.
type AssessRequest struct {
	QuakeID    string
	Source     string
	Location   string
	OriginTime time.Time
	Epicenter  domain.Epicenter
	Threshold  *float64 // nil uses Options.AffectedThreshold
	User       *UserLocation
}

// Assessor builds complete assessments against the store's gazetteer.
type Assessor struct {
	store   *gazetteer.Store
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssessor creates an Assessor.
func NewAssessor(store *gazetteer.Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Assessor {
	return &Assessor{store: store, opts: opts, logger: logger, metrics: metrics}
}

// Assess estimates intensities for req. It waits for the first gazetteer
// load, so it never runs against a partially loaded dataset.
func (a *Assessor) Assess(ctx context.Context, req AssessRequest) (domain.Assessment, error) {
	if err := req.Epicenter.Validate(); err != nil {
		return domain.Assessment{}, err
	}

	g, err := a.store.Wait(ctx)
	if err != nil {
		return domain.Assessment{}, err
	}

	threshold := a.opts.AffectedThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	start := time.Now()
	intensities := BuildIntensityMap(g, req.Epicenter)
	a.metrics.EstimationDuration.Observe(time.Since(start).Seconds())

	affected := domain.AffectedAreas(intensities, threshold)
	a.metrics.AffectedAreas.Observe(float64(len(affected)))

	source := req.Source
	if source == "" {
		source = domain.SourceAPI
	}

	assessment := domain.Assessment{
		ID:           uuid.NewString(),
		QuakeID:      req.QuakeID,
		Source:       source,
		Location:     req.Location,
		Epicenter:    req.Epicenter,
		Threshold:    threshold,
		Intensities:  intensities,
		Affected:     affected,
		MaxIntensity: intensities.Max(),
		OriginTime:   req.OriginTime,
		AssessedAt:   domain.Now(),
	}

	tier := "none"
	if req.User != nil {
		key := resolveUser(g, *req.User)
		risk := domain.AssessPersonalRisk(intensities, key, a.opts.Tiers)
		assessment.Personal = &risk
		tier = string(risk.Tier)
	}
	a.metrics.Assessments.WithLabelValues(source, tier).Inc()

	a.logger.Debug("assessment built",
		"assessment_id", assessment.ID,
		"quake_id", req.QuakeID,
		"source", source,
		"districts", intensities.Len(),
		"affected", len(affected),
		"max_intensity", assessment.MaxIntensity,
	)
	return assessment, nil
}

// ResolveUser maps a user location to a district once the gazetteer is ready.
func (a *Assessor) ResolveUser(ctx context.Context, loc UserLocation) (domain.RegionKey, error) {
	g, err := a.store.Wait(ctx)
	if err != nil {
		return domain.UnknownRegion, err
	}
	return resolveUser(g, loc), nil
}

func resolveUser(g *gazetteer.Gazetteer, loc UserLocation) domain.RegionKey {
	if loc.Region != nil {
		if r, ok := g.Lookup(loc.Region.County, loc.Region.District); ok {
			return r.RegionKey
		}
		return domain.UnknownRegion
	}
	if loc.Coordinate != nil {
		key, _, _ := g.NearestRegion(loc.Coordinate.Lat, loc.Coordinate.Lon)
		return key
	}
	return domain.UnknownRegion
}

// Drill returns the simulated early-warning event: an offshore Hualien quake,
// magnitude 5.8 at 12.3 km.
func Drill(user *UserLocation) AssessRequest {
	now := domain.Now()
	return AssessRequest{
		QuakeID:    fmt.Sprintf("drill-%d", now.Unix()),
		Source:     domain.SourceDrill,
		Location:   "花蓮縣壽豐鄉外海",
		OriginTime: now,
		Epicenter: domain.Epicenter{
			Lat:       23.9076,
			Lon:       121.8731,
			Magnitude: 5.8,
			Depth:     12.3,
		},
		User: user,
	}
}
