// Package pipeline wires discovery, the worker pool and the persistence sink
// into a single crawl run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/discovery"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
	"github.com/JakeFAU/catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/catalog-crawler/internal/sink"
	"github.com/JakeFAU/catalog-crawler/internal/worker"
)

// ErrWorkersExited is returned when every worker stopped before the work
// queue drained.
var ErrWorkersExited = errors.New("all workers exited before the work queue drained")

// Config controls one pipeline run.
type Config struct {
	Catalog          string
	Categories       []crawler.Category
	Workers          int
	QueueDepth       int
	IdleTimeout      time.Duration
	ProgressInterval time.Duration
	ShutdownTimeout  time.Duration
	WriteTimeout     time.Duration
	// IDs names each run; nil uses UUID v7.
	IDs crawler.IDGenerator
}

// Summary describes a finished run.
type Summary struct {
	RunID      string        `json:"run_id"`
	Catalog    string        `json:"catalog"`
	Discovered int64         `json:"discovered"`
	Completed  int64         `json:"completed"`
	Extracted  int64         `json:"extracted"`
	Absent     int64         `json:"absent"`
	Saved      int64         `json:"saved"`
	Failed     int64         `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline runs discovery, extraction and persistence for one catalog.
type Pipeline struct {
	cfg        Config
	discoverer crawler.Discoverer
	acquire    worker.Acquirer
	store      crawler.Store
	publisher  crawler.Publisher
	sinks      []progress.Sink
	logger     *zap.Logger

	reporter atomic.Pointer[progress.Reporter]
}

// New builds a Pipeline. The pipeline takes ownership of store and closes it
// when Run returns. publisher may be nil.
func New(
	cfg Config,
	discoverer crawler.Discoverer,
	acquire worker.Acquirer,
	store crawler.Store,
	publisher crawler.Publisher,
	logger *zap.Logger,
	sinks ...progress.Sink,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.IDs == nil {
		cfg.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		discoverer: discoverer,
		acquire:    acquire,
		store:      store,
		publisher:  publisher,
		sinks:      sinks,
		logger:     logger.Named("pipeline"),
	}
}

// Latest returns the current progress snapshot, or a zero snapshot before
// discovery finishes.
func (p *Pipeline) Latest() progress.Snapshot {
	if r := p.reporter.Load(); r != nil {
		return r.Latest()
	}
	return progress.Snapshot{Catalog: p.cfg.Catalog}
}

// run holds the per-run state torn down by shutdown.
type run struct {
	work     *memory.Queue[crawler.WorkItem]
	results  *memory.Queue[crawler.Record]
	pool     *dispatcher.Pool
	sink     *sink.Sink
	sinkDone chan error
	stopSink context.CancelFunc
	feedDone chan struct{}
	stopFeed context.CancelFunc
	reporter *progress.Reporter
	stats    *worker.Stats
}

// Run executes one crawl. A run that discovers nothing still succeeds.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	id, err := p.cfg.IDs.NewID()
	if err != nil {
		return summary, fmt.Errorf("generate run id: %w", err)
	}
	start := time.Now()
	summary = Summary{RunID: id, Catalog: p.cfg.Catalog}
	logger := p.logger.With(zap.String("run_id", summary.RunID), zap.String("catalog", p.cfg.Catalog))

	if err := p.store.EnsureSchema(ctx); err != nil {
		p.closeStore(ctx, logger)
		return summary, fmt.Errorf("ensure schema: %w", err)
	}

	items := discovery.Collect(ctx, p.discoverer, p.cfg.Categories, logger)
	summary.Discovered = int64(len(items))
	logger.Info("discovery finished", zap.Int("work_items", len(items)))
	if err := ctx.Err(); err != nil {
		p.closeStore(ctx, logger)
		return summary, fmt.Errorf("discovery: %w", err)
	}

	r := p.start(ctx, summary.RunID, items, logger)
	defer func() {
		p.shutdown(ctx, r, logger)
		summary.Completed = r.work.Completed()
		summary.Extracted = r.stats.Extracted.Load()
		summary.Absent = r.stats.Absent.Load()
		summary.Saved = r.sink.Saved()
		summary.Failed = r.sink.Failed()
		summary.Duration = time.Since(start)
	}()

	return summary, p.await(ctx, r)
}

func (p *Pipeline) start(ctx context.Context, runID string, items []crawler.WorkItem, logger *zap.Logger) *run {
	depth := max(p.cfg.QueueDepth, p.cfg.Workers)
	r := &run{
		work:     memory.NewQueue[crawler.WorkItem](depth),
		results:  memory.NewQueue[crawler.Record](depth),
		sinkDone: make(chan error, 1),
		feedDone: make(chan struct{}),
		stats:    &worker.Stats{},
	}

	r.sink = sink.New(p.store, p.publisher, sink.Config{Catalog: p.cfg.Catalog, WriteTimeout: p.cfg.WriteTimeout}, logger)
	sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
	r.stopSink = stopSink
	go func() { r.sinkDone <- r.sink.Run(sinkCtx, r.results) }()

	runners := make([]dispatcher.Runner, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		runners = append(runners, worker.New(r.work, r.results, p.acquire, r.stats, worker.Config{
			ID:          i,
			Catalog:     p.cfg.Catalog,
			IdleTimeout: p.cfg.IdleTimeout,
		}, logger))
	}
	r.pool = dispatcher.New(runners)
	r.pool.Start(ctx)

	r.reporter = progress.NewReporter(progress.Config{
		RunID:    runID,
		Catalog:  p.cfg.Catalog,
		Total:    int64(len(items)),
		Interval: p.cfg.ProgressInterval,
		Logger:   logger,
	}, r.work, p.sinks...)
	p.reporter.Store(r.reporter)
	r.reporter.Start(ctx)

	feedCtx, stopFeed := context.WithCancel(ctx)
	r.stopFeed = stopFeed
	go func() {
		defer close(r.feedDone)
		for _, item := range items {
			if err := r.work.Enqueue(feedCtx, item); err != nil {
				logger.Warn("feeding stopped", zap.Error(err))
				return
			}
		}
	}()
	return r
}

// await blocks until the work queue drains, every worker has exited or ctx
// ends.
func (p *Pipeline) await(ctx context.Context, r *run) error {
	select {
	case <-r.feedDone:
	case <-r.pool.Done():
		return p.exitReason(ctx)
	case <-ctx.Done():
		return fmt.Errorf("run canceled: %w", ctx.Err())
	}
	select {
	case <-r.work.Drained():
		return nil
	case <-r.pool.Done():
		if r.work.Pending() == 0 {
			return nil
		}
		return p.exitReason(ctx)
	case <-ctx.Done():
		return fmt.Errorf("run canceled: %w", ctx.Err())
	}
}

func (p *Pipeline) exitReason(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}
	return ErrWorkersExited
}

// shutdown stops the feeder, terminates every worker, then the sink, and
// finally releases the store. Each wait is bounded by the shutdown timeout.
func (p *Pipeline) shutdown(ctx context.Context, r *run, logger *zap.Logger) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ShutdownTimeout)
	defer cancel()

	r.stopFeed()
	<-r.feedDone

	tctx, stopTerminate := context.WithCancel(sctx)
	go func() {
		select {
		case <-r.pool.Done():
			stopTerminate()
		case <-tctx.Done():
		}
	}()
	if err := r.work.Terminate(tctx, r.pool.Size()); err != nil && r.pool.Alive() > 0 {
		logger.Warn("terminate workers", zap.Error(err))
	}
	stopTerminate()
	if err := r.pool.Wait(sctx); err != nil {
		logger.Warn("workers did not stop in time", zap.Int("alive", r.pool.Alive()), zap.Error(err))
	}

	if err := r.results.Terminate(sctx, 1); err != nil {
		logger.Warn("terminate sink", zap.Error(err))
		r.stopSink()
	}
	select {
	case err := <-r.sinkDone:
		if err != nil {
			logger.Warn("sink stopped with error", zap.Error(err))
		}
	case <-sctx.Done():
		logger.Warn("sink did not stop in time")
		r.stopSink()
		<-r.sinkDone
	}
	r.stopSink()

	r.work.Close()
	r.results.Close()
	final := r.reporter.Stop(sctx)
	if err := r.sink.Close(sctx); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	logger.Info("run finished",
		zap.Int64("done", final.Done),
		zap.Int64("total", final.Total),
		zap.Int64("saved", r.sink.Saved()),
		zap.Int64("failed", r.sink.Failed()))
}

func (p *Pipeline) closeStore(ctx context.Context, logger *zap.Logger) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ShutdownTimeout)
	defer cancel()
	if err := p.store.Close(sctx); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
}
