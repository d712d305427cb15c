package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// RecentStore keeps the most recent assessments in memory, newest first.
// It implements BatchLoader so it can follow the Kafka writer in a Sequence.
type RecentStore struct {
	mu    sync.RWMutex
	items []domain.Assessment
	limit int
}

// NewRecentStore creates a store holding at most limit assessments.
func NewRecentStore(limit int) *RecentStore {
	if limit < 1 {
		limit = 1
	}
	return &RecentStore{limit: limit}
}

// Add records one assessment.
func (s *RecentStore) Add(a domain.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.Assessment{a}, s.items...)
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
}

// LoadBatch records assessments in arrival order.
func (s *RecentStore) LoadBatch(_ context.Context, assessments []domain.Assessment) error {
	for _, a := range assessments {
		s.Add(a)
	}
	return nil
}

// Recent returns up to n assessments, newest first. n <= 0 returns all.
func (s *RecentStore) Recent(n int) []domain.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]domain.Assessment, n)
	copy(out, s.items[:n])
	return out
}

// Sequence loads each batch into its loaders in order and stops at the first
// failure, so a later loader only sees batches every earlier loader accepted.
type Sequence []BatchLoader

func (s Sequence) LoadBatch(ctx context.Context, assessments []domain.Assessment) error {
	for i, l := range s {
		if err := l.LoadBatch(ctx, assessments); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
