package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// LogSink emits structured logs for each snapshot. It is the non-interactive
// alternative to LineSink.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the snapshot using structured fields.
func (s *LogSink) Consume(_ context.Context, snap progress.Snapshot) error {
	fields := []zap.Field{
		zap.String("run_id", snap.RunID),
		zap.String("catalog", snap.Catalog),
		zap.Int64("done", snap.Done),
		zap.Int64("total", snap.Total),
		zap.Float64("percent", snap.Percent()),
	}
	if snap.Final {
		s.logger.Info("progress complete", fields...)
		return nil
	}
	s.logger.Debug("progress", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
