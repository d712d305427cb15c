// Package collector polls the CWA earthquake feed on a schedule and publishes
// newly seen reports to the source topic.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// Feed supplies earthquake reports. *cwa.Client implements it.
type Feed interface {
	SignificantReports(ctx context.Context) ([]domain.QuakeReport, error)
	LocalReports(ctx context.Context) ([]domain.QuakeReport, error)
}

// Publisher writes quake messages to the source topic. *kafka.Publisher implements it.
type Publisher interface {
	PublishQuakes(ctx context.Context, quakes []domain.QuakeMessage) error
}

// Options tunes a Collector.
type Options struct {
	IncludeLocal bool // also poll small-area reports
	MockFallback bool // publish MockReports when the feed fails
	SeenCapacity int  // report IDs remembered for de-duplication
}

// Collector publishes each feed report at most once per process lifetime.
type Collector struct {
	feed      Feed
	publisher Publisher
	opts      Options
	mu        sync.Mutex // serializes polls
	seen      *seenSet
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Collector.
func New(feed Feed, publisher Publisher, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Collector {
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = 1000
	}
	return &Collector{
		feed:      feed,
		publisher: publisher,
		opts:      opts,
		seen:      newSeenSet(opts.SeenCapacity),
		metrics:   metrics,
		logger:    logger,
	}
}

// Poll fetches the feed once and publishes unseen reports, oldest first.
// Reports are marked seen only after a successful publish, so a failed
// publish is retried on the next poll.
func (c *Collector) Poll(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	source := domain.SourceCWA
	reports, err := c.fetch(ctx)
	if err != nil {
		if !c.opts.MockFallback || ctx.Err() != nil {
			return 0, err
		}
		c.logger.Warn("feed unavailable, falling back to mock reports", "error", err)
		c.metrics.MockFallbacks.Inc()
		reports, source = MockReports(domain.Now()), domain.SourceMock
	}

	var fresh []domain.QuakeMessage
	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		if c.seen.has(r.ID) {
			continue
		}
		fresh = append(fresh, domain.NewQuakeMessage(r, source))
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := c.publisher.PublishQuakes(ctx, fresh); err != nil {
		return 0, fmt.Errorf("publish %d quakes: %w", len(fresh), err)
	}
	for _, q := range fresh {
		c.seen.add(q.ID)
		c.logger.Info("quake published",
			"quake_id", q.ID,
			"source", q.Source,
			"origin_time", q.OriginTime,
			"location", q.Location,
			"magnitude", q.Magnitude,
			"max_intensity", q.MaxIntensity,
		)
	}
	c.metrics.QuakesPublished.Add(float64(len(fresh)))
	return len(fresh), nil
}

func (c *Collector) fetch(ctx context.Context) ([]domain.QuakeReport, error) {
	reports, err := c.feed.SignificantReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch significant reports: %w", err)
	}
	if !c.opts.IncludeLocal {
		return reports, nil
	}

	local, err := c.feed.LocalReports(ctx)
	if err != nil {
		// Significant reports are still worth publishing.
		c.logger.Warn("fetch local reports failed", "error", err)
		return reports, nil
	}
	return mergeNewestFirst(reports, local), nil
}

// Run polls immediately, then on every tick of schedule until ctx is done.
// Overlapping polls are skipped.
func (c *Collector) Run(ctx context.Context, schedule string) error {
	cl := cronLogger{c.logger}
	cr := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	job := cron.FuncJob(func() { c.pollAndLog(ctx) })
	if _, err := cr.AddJob(schedule, job); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	c.logger.Info("collector started", "schedule", schedule, "include_local", c.opts.IncludeLocal, "mock_fallback", c.opts.MockFallback)
	c.pollAndLog(ctx)
	cr.Start()

	<-ctx.Done()
	<-cr.Stop().Done()
	c.logger.Info("collector stopped")
	return nil
}

func (c *Collector) pollAndLog(ctx context.Context) {
	n, err := c.Poll(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		// shutting down
	case err != nil:
		c.logger.Error("poll failed", "error", err)
	case n > 0:
		c.logger.Info("poll complete", "published", n)
	default:
		c.logger.Debug("poll complete, nothing new")
	}
}

func mergeNewestFirst(a, b []domain.QuakeReport) []domain.QuakeReport {
	out := make([]domain.QuakeReport, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].OriginTime.After(a[i].OriginTime) {
			out = append(out, b[j])
			j++
			continue
		}
		out = append(out, a[i])
		i++
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// seenSet remembers the most recent IDs, evicting the oldest.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, limit), limit: limit}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) add(id string) {
	if s.has(id) {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *seenSet) len() int { return len(s.order) }

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
