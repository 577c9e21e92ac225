package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// LineSink rewrites a single terminal line on every snapshot and terminates
// it with a newline on the final one.
type LineSink struct {
	mu       sync.Mutex
	w        io.Writer
	finished bool
}

// NewLineSink writes to w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// Consume renders `\r[progress]: done/total (pct%)`.
func (s *LineSink) Consume(_ context.Context, snap progress.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "\r[progress]: %d/%d (%.1f%%)", snap.Done, snap.Total, snap.Percent()); err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	if snap.Final {
		s.finished = true
		if _, err := io.WriteString(s.w, "\n"); err != nil {
			return fmt.Errorf("write progress line: %w", err)
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LineSink) Close(context.Context) error {
	return nil
}
