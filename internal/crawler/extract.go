package crawler

import (
	"context"

	"go.uber.org/zap"
)

// SafeExtractor converts panics raised by a site extractor into an absent
// result so a single malformed page never takes down a worker.
type SafeExtractor struct {
	next   Extractor
	logger *zap.Logger
}

// NewSafeExtractor wraps next.
func NewSafeExtractor(next Extractor, logger *zap.Logger) *SafeExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeExtractor{next: next, logger: logger}
}

// Extract delegates to the wrapped extractor and recovers from panics.
func (s *SafeExtractor) Extract(ctx context.Context, item WorkItem) (rec Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("extractor panic recovered", zap.String("url", item.URL), zap.Any("panic", r))
			rec, ok = Record{}, false
		}
	}()
	return s.next.Extract(ctx, item)
}
