package progress

import "context"

// Sink consumes progress snapshots. Implementations must honor ctx deadlines
// and tolerate repeated Close calls.
type Sink interface {
	Consume(ctx context.Context, snap Snapshot) error
	Close(ctx context.Context) error
}

// Counter exposes a monotonically increasing completion count, such as the
// work queue's Completed method.
type Counter interface {
	Completed() int64
}
