package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval    = time.Second
	defaultSinkTimeout = 5 * time.Second
)

// Config controls a Reporter.
type Config struct {
	RunID       string
	Catalog     string
	Total       int64
	Interval    time.Duration
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

// Reporter polls a Counter and emits non-decreasing snapshots to its sinks.
type Reporter struct {
	cfg     Config
	counter Counter
	sinks   []Sink
	logger  *zap.Logger

	mu     sync.RWMutex
	latest Snapshot

	stopCh   chan struct{}
	doneCh   chan struct{}
	startOne sync.Once
	stopOnce sync.Once
}

// NewReporter builds a Reporter. Call Start to begin sampling.
func NewReporter(cfg Config, counter Counter, sinks ...Sink) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		cfg:     cfg,
		counter: counter,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger.Named("progress"),
		latest:  Snapshot{RunID: cfg.RunID, Catalog: cfg.Catalog, Total: cfg.Total},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the sampling goroutine. It stops on Stop or when ctx ends.
func (r *Reporter) Start(ctx context.Context) {
	r.startOne.Do(func() {
		go r.loop(ctx)
	})
}

func (r *Reporter) loop(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.emit(ctx, r.sample(false))
		}
	}
}

// sample reads the counter and folds it into the latest snapshot. Done never
// decreases and never exceeds Total.
func (r *Reporter) sample(final bool) Snapshot {
	done := r.counter.Completed()
	r.mu.Lock()
	defer r.mu.Unlock()
	if done < r.latest.Done {
		done = r.latest.Done
	}
	if r.cfg.Total > 0 && done > r.cfg.Total {
		done = r.cfg.Total
	}
	r.latest.Done = done
	r.latest.Final = final
	r.latest.At = time.Now()
	return r.latest
}

func (r *Reporter) emit(ctx context.Context, snap Snapshot) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, r.cfg.SinkTimeout)
		if err := s.Consume(sctx, snap); err != nil {
			r.logger.Warn("progress sink failed", zap.Error(err))
		}
		cancel()
	}
}

// Latest returns the most recent snapshot.
func (r *Reporter) Latest() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Stop halts sampling, emits one final snapshot and closes every sink. Only
// the first call has an effect.
func (r *Reporter) Stop(ctx context.Context) Snapshot {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.startOne.Do(func() { close(r.doneCh) })
		select {
		case <-r.doneCh:
		case <-ctx.Done():
		}
		r.emit(context.WithoutCancel(ctx), r.sample(true))
		for _, s := range r.sinks {
			if err := s.Close(ctx); err != nil {
				r.logger.Warn("close progress sink", zap.Error(err))
			}
		}
	})
	return r.Latest()
}
