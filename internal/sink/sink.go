// Package sink persists extracted records. A Sink is the only goroutine that
// touches its store.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/queue/memory"
)

// ResultSource yields records until a terminator is observed.
type ResultSource interface {
	Dequeue(ctx context.Context) (crawler.Record, error)
	TaskDone()
}

// Config controls Sink behavior.
type Config struct {
	Catalog      string
	WriteTimeout time.Duration
}

// Sink drains the result queue into a crawler.Store.
type Sink struct {
	store     crawler.Store
	publisher crawler.Publisher
	cfg       Config
	logger    *zap.Logger

	saved     atomic.Int64
	failed    atomic.Int64
	published atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// New creates a Sink that owns store. publisher may be nil.
func New(store crawler.Store, publisher crawler.Publisher, cfg Config, logger *zap.Logger) *Sink {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("sink"),
	}
}

// Run saves records until a terminator arrives, the queue closes or ctx
// ends. Row-level failures are logged and counted, never returned.
func (s *Sink) Run(ctx context.Context, results ResultSource) error {
	for {
		record, err := results.Dequeue(ctx)
		switch {
		case err == nil:
			s.save(ctx, record)
			results.TaskDone()
		case errors.Is(err, memory.ErrTerminated), errors.Is(err, memory.ErrClosed):
			s.logger.Debug("result stream finished",
				zap.Int64("saved", s.saved.Load()),
				zap.Int64("failed", s.failed.Load()))
			return nil
		default:
			return fmt.Errorf("sink dequeue: %w", err)
		}
	}
}

func (s *Sink) save(ctx context.Context, record crawler.Record) {
	// In-flight writes finish even when the run is being canceled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := s.store.Save(wctx, record)
	metrics.ObserveSave(s.cfg.Catalog, err, time.Since(start))
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("save record failed", zap.String("url", record.URL), zap.Error(err))
		return
	}
	s.saved.Add(1)

	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(wctx, notification{Catalog: s.cfg.Catalog, Record: record}); err != nil {
		s.logger.Warn("publish notification failed", zap.String("url", record.URL), zap.Error(err))
		return
	}
	s.published.Add(1)
}

type notification struct {
	Catalog string         `json:"catalog"`
	Record  crawler.Record `json:"record"`
}

// Saved reports successfully persisted records.
func (s *Sink) Saved() int64 { return s.saved.Load() }

// Failed reports records whose save returned an error.
func (s *Sink) Failed() int64 { return s.failed.Load() }

// Published reports notifications accepted by the publisher.
func (s *Sink) Published() int64 { return s.published.Load() }

// Close releases the store. Only the first call has an effect.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.store.Close(ctx); err != nil {
			s.closeErr = fmt.Errorf("close store: %w", err)
		}
	})
	return s.closeErr
}
