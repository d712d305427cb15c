package gazetteer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// ErrNotLoaded is returned by Store.Current before the first load settles.
var ErrNotLoaded = errors.New("gazetteer not loaded")

// LoadResult describes the outcome of Store.Load.
type LoadResult struct {
	Gazetteer   *Gazetteer
	Diagnostics Diagnostics
	Source      string // name of the source the active gazetteer came from
	Fallback    bool   // true when the configured source failed
	Err         error  // the source failure, when Fallback is true
}

// Store owns the active gazetteer. The gazetteer itself is never mutated; a
// reload swaps in a new instance atomically.
type Store struct {
	source  Source
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex // serializes loads
	current  atomic.Pointer[Gazetteer]
	origin   atomic.Value // string
	loaded   chan struct{}
	loadOnce sync.Once
}

// NewStore creates an empty store backed by source.
func NewStore(source Source, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		source:  source,
		logger:  logger,
		metrics: metrics,
		loaded:  make(chan struct{}),
	}
}

// NewStaticStore returns a store that is already loaded with g. Useful for
// tests and tools that build a gazetteer directly.
func NewStaticStore(g *Gazetteer, logger *slog.Logger, metrics *observability.Metrics) *Store {
	s := NewStore(staticSource{}, logger, metrics)
	s.activate(g, "static")
	return s
}

// Load reads the source and activates the result. If the source fails or
// yields no usable district, the previously active gazetteer is kept; with no
// previous gazetteer the built-in dataset is used. Load never leaves the store
// unloaded, and calling it repeatedly is safe.
func (s *Store) Load(ctx context.Context) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, diag, err := s.fromSource(ctx)
	if err == nil {
		s.reportSkipped(diag)
		s.activate(g, s.source.Name())
		s.metrics.GazetteerLoads.WithLabelValues("success").Inc()
		s.logger.Info("gazetteer loaded",
			"source", s.source.Name(),
			"regions", g.Len(),
			"skipped", len(diag.Skipped),
		)
		return LoadResult{Gazetteer: g, Diagnostics: diag, Source: s.source.Name()}
	}

	s.metrics.GazetteerLoads.WithLabelValues("error").Inc()
	if len(diag.Skipped) > 0 {
		s.reportSkipped(diag)
	}

	if prev := s.current.Load(); prev != nil {
		origin, _ := s.origin.Load().(string)
		s.logger.Warn("gazetteer load failed, keeping last good dataset",
			"source", s.source.Name(),
			"active_source", origin,
			"regions", prev.Len(),
			"error", err,
		)
		s.metrics.GazetteerLoads.WithLabelValues("fallback").Inc()
		return LoadResult{Gazetteer: prev, Source: origin, Fallback: true, Err: err}
	}

	builtin, builtinDiag := New(BuiltinRecords())
	s.activate(builtin, BuiltinSource{}.Name())
	s.logger.Warn("gazetteer load failed, using built-in dataset",
		"source", s.source.Name(),
		"regions", builtin.Len(),
		"error", err,
	)
	s.metrics.GazetteerLoads.WithLabelValues("fallback").Inc()
	return LoadResult{Gazetteer: builtin, Diagnostics: builtinDiag, Source: BuiltinSource{}.Name(), Fallback: true, Err: err}
}

// Current returns the active gazetteer, or ErrNotLoaded.
func (s *Store) Current() (*Gazetteer, error) {
	g := s.current.Load()
	if g == nil {
		return nil, ErrNotLoaded
	}
	return g, nil
}

// Wait blocks until the first load settles or ctx is done.
func (s *Store) Wait(ctx context.Context) (*Gazetteer, error) {
	select {
	case <-s.loaded:
		return s.current.Load(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for gazetteer: %w", ctx.Err())
	}
}

// CheckReadiness returns nil once a gazetteer is active.
func (s *Store) CheckReadiness(_ context.Context) error {
	_, err := s.Current()
	return err
}

func (s *Store) fromSource(ctx context.Context) (*Gazetteer, Diagnostics, error) {
	records, err := s.source.Records(ctx)
	if err != nil {
		return nil, Diagnostics{}, err
	}
	g, diag := New(records)
	if g.Len() == 0 {
		return nil, diag, fmt.Errorf("source %s has no usable districts (%d skipped)", s.source.Name(), len(diag.Skipped))
	}
	return g, diag, nil
}

func (s *Store) activate(g *Gazetteer, origin string) {
	s.current.Store(g)
	s.origin.Store(origin)
	s.metrics.GazetteerRegions.Set(float64(g.Len()))
	s.loadOnce.Do(func() { close(s.loaded) })
}

func (s *Store) reportSkipped(diag Diagnostics) {
	s.metrics.GazetteerSkipped.Set(float64(len(diag.Skipped)))
	for _, e := range diag.Skipped {
		s.logger.Warn("gazetteer entry skipped",
			"county", e.County,
			"district", e.District,
			"reason", e.Reason,
		)
	}
}

type staticSource struct{}

func (staticSource) Name() string { return "static" }

func (staticSource) Records(_ context.Context) ([]domain.RegionRecord, error) {
	return nil, errors.New("static gazetteer cannot be reloaded")
}
