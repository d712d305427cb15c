// Package pipeline consumes quake messages, assesses them and loads the
// resulting assessments.
//
// Offsets are committed only once a batch is settled: every message either
// produced a loaded assessment or was skipped as poison. A message whose
// assessment fails for any other reason is retried in place, because
// committing a later offset would silently acknowledge it.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns a raw quake message into an assessment.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Assessment, error)
}

// BatchLoader writes assessments to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, assessments []domain.Assessment) error
}

// commitTimeout bounds offset commits, which outlive cancellation so that a
// batch loaded during shutdown is not assessed twice after restart.
const commitTimeout = 5 * time.Second

// Pipeline runs the consume-assess-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
	retry       retryPolicy
	running     atomic.Bool
	processed   atomic.Int64
}

// New creates a Pipeline.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		retry:       defaultRetry,
	}
}

// CheckReadiness returns nil while the consume loop is running. Quakes are
// rare, so readiness does not wait for the first message.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("pipeline is not running")
	}
	return nil
}

// Processed returns the number of assessments loaded since start.
func (p *Pipeline) Processed() int64 {
	return p.processed.Load()
}

// Run consumes until ctx is cancelled. Stage failures are retried with
// backoff, so Run only returns once ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.setRunning(true)
	defer p.setRunning(false)

	extract := p.retry.start()
	for ctx.Err() == nil {
		batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("extract batch failed", "error", err)
			p.metrics.PipelineRetries.WithLabelValues("extract").Inc()
			extract.wait(ctx)
			continue
		}
		extract.reset()

		if len(batch) > 0 {
			p.settle(ctx, batch)
		}
	}

	p.logger.Info("pipeline stopped", "reason", ctx.Err(), "processed", p.Processed())
	return nil
}

func (p *Pipeline) setRunning(running bool) {
	p.running.Store(running)
	if running {
		p.metrics.PipelineRunning.Set(1)
		return
	}
	p.metrics.PipelineRunning.Set(0)
}

// settle assesses, loads and commits one batch. If ctx ends first nothing in
// the batch is committed and the broker redelivers it.
func (p *Pipeline) settle(ctx context.Context, batch []domain.RawEvent) {
	start := time.Now()
	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	assessments := make([]domain.Assessment, 0, len(batch))
	for _, raw := range batch {
		a, ok := p.assess(ctx, raw)
		if ctx.Err() != nil {
			return
		}
		if ok {
			assessments = append(assessments, a)
		}
	}

	if len(assessments) > 0 {
		if !p.load(ctx, assessments) {
			return
		}
		p.metrics.MessagesProduced.Add(float64(len(assessments)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.processed.Add(int64(len(assessments)))
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	for _, raw := range batch {
		p.commit(commitCtx, raw)
	}
}

// assess transforms one message. It reports false for poison messages, which
// are skipped, and retries every other failure until it succeeds or ctx ends.
func (p *Pipeline) assess(ctx context.Context, raw domain.RawEvent) (domain.Assessment, bool) {
	retry := p.retry.start()
	for {
		a, err := p.transformer.Transform(ctx, raw)
		switch {
		case err == nil:
			return a, true
		case ctx.Err() != nil:
			return domain.Assessment{}, false
		case isPoison(err):
			p.logger.Warn("skipping unusable quake message",
				"error", err,
				"key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			return domain.Assessment{}, false
		}

		p.logger.Error("assessment failed, retrying", "error", err, "key", string(raw.Key), "offset", raw.Offset)
		p.metrics.PipelineRetries.WithLabelValues("assess").Inc()
		if !retry.wait(ctx) {
			return domain.Assessment{}, false
		}
	}
}

// load writes the batch, retrying until it succeeds. It reports false if ctx
// ended first.
func (p *Pipeline) load(ctx context.Context, assessments []domain.Assessment) bool {
	retry := p.retry.start()
	for {
		err := p.loader.LoadBatch(ctx, assessments)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("load batch failed, retrying", "error", err, "batch_size", len(assessments))
		p.metrics.PipelineRetries.WithLabelValues("load").Inc()
		if !retry.wait(ctx) {
			return false
		}
	}
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// isPoison reports whether a transform error can never succeed on retry.
func isPoison(err error) bool {
	return errors.Is(err, domain.ErrMalformedMessage) || errors.Is(err, domain.ErrInvalidEpicenter)
}

// retryPolicy is an exponential backoff from initial, doubling up to max.
type retryPolicy struct {
	initial time.Duration
	max     time.Duration
}

var defaultRetry = retryPolicy{initial: 200 * time.Millisecond, max: 5 * time.Second}

func (r retryPolicy) start() *backoff {
	return &backoff{policy: r, delay: r.initial}
}

type backoff struct {
	policy retryPolicy
	delay  time.Duration
}

func (b *backoff) reset() { b.delay = b.policy.initial }

// wait sleeps for the current delay, then doubles it. It reports false if ctx
// ended first.
func (b *backoff) wait(ctx context.Context) bool {
	timer := time.NewTimer(b.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	b.delay = min(b.delay*2, b.policy.max)
	return true
}
