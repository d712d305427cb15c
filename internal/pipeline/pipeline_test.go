package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
	"github.com/couchcryptid/quake-intensity-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	events []domain.RawEvent
	served atomic.Bool
	err    error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.served.Swap(true) && len(m.events) > 0 {
		return m.events, nil
	}
	// block until context cancelled to simulate waiting for messages
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	failKey        string
	transientFails atomic.Int32 // calls that fail with a retryable error first
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Assessment, error) {
	if string(raw.Key) == m.failKey {
		return domain.Assessment{}, fmt.Errorf("%w: bad data", domain.ErrMalformedMessage)
	}
	if m.transientFails.Add(-1) >= 0 {
		return domain.Assessment{}, errors.New("gazetteer unavailable")
	}
	return domain.Assessment{ID: "a-" + string(raw.Key), QuakeID: string(raw.Key)}, nil
}

type mockLoader struct {
	mu        sync.Mutex
	loaded    []domain.Assessment
	err       error
	failFirst int
	calls     int
}

func (m *mockLoader) LoadBatch(_ context.Context, assessments []domain.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	if m.calls <= m.failFirst {
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, assessments...)
	return nil
}

func (m *mockLoader) snapshot() []domain.Assessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Assessment(nil), m.loaded...)
}

// commitRecorder hands out commit callbacks that record their key.
type commitRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (c *commitRecorder) attach(raw domain.RawEvent) domain.RawEvent {
	key := string(raw.Key)
	raw.Commit = func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.keys = append(c.keys, key)
		return nil
	}
	return raw
}

func (c *commitRecorder) committed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{events: []domain.RawEvent{makeRawEvent(t, "113019"), makeRawEvent(t, "113020")}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, ldr.loaded, 2)
	assert.Equal(t, "113019", ldr.loaded[0].QuakeID)
	assert.Equal(t, int64(2), p.Processed())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MessagesConsumed))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MessagesProduced))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ldr.loaded)
}

func TestPipeline_Run_PoisonMessageSkipsAndCommits(t *testing.T) {
	commits := &commitRecorder{}
	bad := commits.attach(makeRawEvent(t, "bad"))
	good := commits.attach(makeRawEvent(t, "good"))

	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{bad, good}}, &mockTransformer{failKey: "bad"}, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, "good", ldr.loaded[0].QuakeID)
	assert.Equal(t, []string{"bad", "good"}, commits.committed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
}

func TestPipeline_Run_InvalidEpicenterIsPoison(t *testing.T) {
	commits := &commitRecorder{}
	raw := commits.attach(domain.RawEvent{Key: []byte("huge"), Value: []byte(`{"id":"huge","lat":23.9,"lon":121.8,"magnitude":1e308,"depth":1}`)})

	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, newTestTransformer(t), ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Equal(t, []string{"huge"}, commits.committed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
}

func TestPipeline_Run_CancelWhileWaitingForGazetteerDoesNotCommit(t *testing.T) {
	metrics := newTestMetrics()
	// Never loaded, so every assessment blocks until ctx ends.
	store := gazetteer.NewStore(gazetteer.BuiltinSource{}, discardLogger(), metrics)
	assessor := estimator.NewAssessor(store, estimator.DefaultOptions(), discardLogger(), metrics)

	commits := &commitRecorder{}
	raw := commits.attach(makeRawEvent(t, "113019"))
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, pipeline.NewTransformer(assessor, discardLogger()), ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, commits.committed())
	assert.Empty(t, ldr.loaded)
	assert.Zero(t, p.Processed())
	assert.Zero(t, testutil.ToFloat64(metrics.TransformErrors))
}

func TestPipeline_Run_TransientTransformErrorRetried(t *testing.T) {
	commits := &commitRecorder{}
	raw := commits.attach(makeRawEvent(t, "113019"))

	tfm := &mockTransformer{}
	tfm.transientFails.Store(1)
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, tfm, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, []string{"113019"}, commits.committed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRetries.WithLabelValues("assess")))
	assert.Zero(t, testutil.ToFloat64(metrics.TransformErrors))
}

func TestPipeline_Run_LoadErrorDoesNotCommit(t *testing.T) {
	commits := &commitRecorder{}
	raw := commits.attach(makeRawEvent(t, "113019"))

	ldr := &mockLoader{err: errors.New("broker unavailable")}
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, commits.committed())
	assert.Zero(t, p.Processed())
}

func TestPipeline_Run_LoadRetriedUntilAccepted(t *testing.T) {
	commits := &commitRecorder{}
	raw := commits.attach(makeRawEvent(t, "113019"))

	ldr := &mockLoader{failFirst: 1}
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, ldr.snapshot(), 1)
	assert.Equal(t, []string{"113019"}, commits.committed())
	assert.Equal(t, int64(1), p.Processed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRetries.WithLabelValues("load")))
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	p := pipeline.New(&mockExtractor{err: errors.New("connection refused")}, &mockTransformer{}, &mockLoader{}, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, p.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipeline_CheckReadiness(t *testing.T) {
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, &mockLoader{}, discardLogger(), newTestMetrics(), 10)
	assert.Error(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestRecentStore(t *testing.T) {
	s := pipeline.NewRecentStore(2)

	require.NoError(t, s.LoadBatch(context.Background(), []domain.Assessment{{ID: "1"}, {ID: "2"}, {ID: "3"}}))

	got := s.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	assert.Len(t, s.Recent(1), 1)
	assert.Len(t, s.Recent(10), 2)
}

func TestRecentStore_ReturnsCopy(t *testing.T) {
	s := pipeline.NewRecentStore(5)
	s.Add(domain.Assessment{ID: "1"})

	got := s.Recent(0)
	got[0].ID = "changed"

	assert.Equal(t, "1", s.Recent(0)[0].ID)
}

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	failing := &mockLoader{err: errors.New("kafka down")}
	recent := pipeline.NewRecentStore(5)

	err := pipeline.Sequence{failing, recent}.LoadBatch(context.Background(), []domain.Assessment{{ID: "1"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka down")
	assert.Empty(t, recent.Recent(0))
}

func TestSequence_DeliversInOrder(t *testing.T) {
	first := &mockLoader{}
	recent := pipeline.NewRecentStore(5)

	require.NoError(t, pipeline.Sequence{first, recent}.LoadBatch(context.Background(), []domain.Assessment{{ID: "1"}}))

	assert.Len(t, first.loaded, 1)
	assert.Len(t, recent.Recent(0), 1)
}

func TestPipeline_RecentOnlyAfterWriterAccepts(t *testing.T) {
	writer := &mockLoader{err: errors.New("kafka down")}
	recent := pipeline.NewRecentStore(5)
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{makeRawEvent(t, "113019")}}, &mockTransformer{}, pipeline.Sequence{writer, recent}, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, recent.Recent(0))
}

// --- helpers ---

func makeRawEvent(t *testing.T, id string) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.QuakeMessage{
		ID:        id,
		Source:    domain.SourceCWA,
		Lat:       23.77,
		Lon:       121.67,
		Magnitude: 7.2,
		Depth:     15.5,
	})
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(id),
		Value: data,
	}
}
