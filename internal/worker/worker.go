// Package worker implements the extraction loop run by each pool member.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/queue/memory"
)

// WorkSource yields work items and tracks their completion.
type WorkSource interface {
	Dequeue(ctx context.Context) (crawler.WorkItem, error)
	TaskDone()
}

// ResultSink accepts extracted records.
type ResultSink interface {
	Enqueue(ctx context.Context, record crawler.Record) error
}

// Acquirer hands a worker the extractor it keeps for its whole lifetime and a
// release func called when the worker exits.
type Acquirer func(ctx context.Context) (crawler.Extractor, func(), error)

// Shared returns an Acquirer that hands every worker the same extractor.
func Shared(e crawler.Extractor) Acquirer {
	return func(context.Context) (crawler.Extractor, func(), error) {
		return e, func() {}, nil
	}
}

// Stats aggregates outcomes across all workers of a pool.
type Stats struct {
	Extracted atomic.Int64
	Absent    atomic.Int64
	Dropped   atomic.Int64
}

// Config controls Worker behavior.
type Config struct {
	ID          int
	Catalog     string
	IdleTimeout time.Duration
}

// Worker pulls work items, extracts records and forwards them.
type Worker struct {
	work    WorkSource
	results ResultSink
	acquire Acquirer
	stats   *Stats
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. stats may be shared between workers.
func New(work WorkSource, results ResultSink, acquire Acquirer, stats *Stats, cfg Config, logger *zap.Logger) *Worker {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if stats == nil {
		stats = &Stats{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		work:    work,
		results: results,
		acquire: acquire,
		stats:   stats,
		cfg:     cfg,
		logger:  logger.Named("worker").With(zap.Int("worker_id", cfg.ID)),
	}
}

// Run blocks until the worker pulls a terminator, the queue closes or ctx
// ends. An error is returned only when the extractor could not be acquired.
func (w *Worker) Run(ctx context.Context) error {
	extractor, release, err := w.acquire(ctx)
	if err != nil {
		w.logger.Error("acquire extractor failed", zap.Error(err))
		return fmt.Errorf("worker %d acquire: %w", w.cfg.ID, err)
	}
	defer release()
	extractor = crawler.NewSafeExtractor(extractor, w.logger)

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	w.logger.Debug("worker started")

	for {
		item, err := w.next(ctx)
		switch {
		case err == nil:
			w.process(ctx, extractor, item)
		case errors.Is(err, memory.ErrTerminated):
			w.logger.Debug("terminator received")
			return nil
		case errors.Is(err, memory.ErrClosed):
			w.logger.Debug("work queue closed")
			return nil
		case ctx.Err() != nil:
			w.logger.Debug("worker canceled", zap.Error(ctx.Err()))
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			// Idle timeout; the queue is empty but not terminated yet.
		default:
			w.logger.Error("dequeue failed", zap.Error(err))
		}
	}
}

func (w *Worker) next(ctx context.Context) (crawler.WorkItem, error) {
	dctx, cancel := context.WithTimeout(ctx, w.cfg.IdleTimeout)
	defer cancel()
	item, err := w.work.Dequeue(dctx)
	if err != nil {
		return crawler.WorkItem{}, fmt.Errorf("dequeue: %w", err)
	}
	return item, nil
}

// process handles one item. TaskDone is called only after the record has
// been handed to the result queue, so a drained work queue implies every
// record is visible to the sink.
func (w *Worker) process(ctx context.Context, extractor crawler.Extractor, item crawler.WorkItem) {
	defer w.work.TaskDone()

	record, ok := extractor.Extract(ctx, item)
	metrics.ObserveExtraction(w.cfg.Catalog, ok)
	if !ok {
		w.stats.Absent.Add(1)
		w.logger.Debug("no record extracted", zap.String("url", item.URL))
		return
	}
	w.stats.Extracted.Add(1)
	if err := w.results.Enqueue(ctx, record); err != nil {
		w.stats.Dropped.Add(1)
		w.logger.Warn("result enqueue failed", zap.String("url", item.URL), zap.Error(err))
	}
}
