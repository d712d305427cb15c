package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
)

// Assessor builds an assessment for one estimation request.
// *estimator.Assessor implements it.
type Assessor interface {
	Assess(ctx context.Context, req estimator.AssessRequest) (domain.Assessment, error)
}

// QuakeTransformer implements Transformer by parsing the quake message and
// estimating district intensities for its epicenter.
type QuakeTransformer struct {
	assessor Assessor
	logger   *slog.Logger
}

// NewTransformer creates a QuakeTransformer.
func NewTransformer(assessor Assessor, logger *slog.Logger) *QuakeTransformer {
	return &QuakeTransformer{
		assessor: assessor,
		logger:   logger,
	}
}

func (t *QuakeTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Assessment, error) {
	msg, err := domain.ParseQuakeMessage(raw)
	if err != nil {
		return domain.Assessment{}, err
	}

	a, err := t.assessor.Assess(ctx, estimator.AssessRequest{
		QuakeID:    msg.ID,
		Source:     msg.Source,
		Location:   msg.Location,
		OriginTime: msg.OriginTime,
		Epicenter:  msg.Epicenter(),
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	a.Reported = msg.MaxIntensity

	if len(a.Affected) > 0 {
		t.logger.Info("quake affects districts",
			"quake_id", msg.ID,
			"location", msg.Location,
			"magnitude", msg.Magnitude,
			"affected", len(a.Affected),
			"max_intensity", a.MaxIntensity,
		)
	}
	return a, nil
}
