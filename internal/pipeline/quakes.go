package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// QuakeLog keeps one summary per assessed quake for the quake list, holding
// at most limit quakes and dropping the oldest origin time first. A quake
// redelivered by the broker replaces its earlier entry. It implements
// BatchLoader and follows the Kafka writer in a Sequence.
type QuakeLog struct {
	mu    sync.RWMutex
	byID  map[string]domain.QuakeSummary
	limit int
}

// NewQuakeLog creates a log holding at most limit quakes.
func NewQuakeLog(limit int) *QuakeLog {
	if limit < 1 {
		limit = 1
	}
	return &QuakeLog{byID: make(map[string]domain.QuakeSummary), limit: limit}
}

// Add records one quake. Summaries without an ID are ignored.
func (l *QuakeLog) Add(q domain.QuakeSummary) {
	if q.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.byID[q.ID] = q
	if len(l.byID) > l.limit {
		l.evictOldest()
	}
}

func (l *QuakeLog) evictOldest() {
	var oldest domain.QuakeSummary
	first := true
	for _, q := range l.byID {
		if first || q.OriginTime.Before(oldest.OriginTime) {
			oldest, first = q, false
		}
	}
	delete(l.byID, oldest.ID)
}

// LoadBatch records the quake behind each assessment.
func (l *QuakeLog) LoadBatch(_ context.Context, assessments []domain.Assessment) error {
	for _, a := range assessments {
		l.Add(a.Quake())
	}
	return nil
}

// List returns the quakes matching f, newest origin time first.
func (l *QuakeLog) List(f domain.QuakeFilter) []domain.QuakeSummary {
	l.mu.RLock()
	out := make([]domain.QuakeSummary, 0, len(l.byID))
	for _, q := range l.byID {
		if f.Match(q) {
			out = append(out, q)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OriginTime.Equal(out[j].OriginTime) {
			return out[i].OriginTime.After(out[j].OriginTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Stats summarizes every logged quake relative to now.
func (l *QuakeLog) Stats(now time.Time) domain.QuakeStats {
	return domain.SummarizeQuakes(l.List(domain.QuakeFilter{}), now)
}
