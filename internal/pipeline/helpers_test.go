package pipeline

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []progress.Snapshot
}

func (s *recordingSink) Consume(_ context.Context, snap progress.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) last() progress.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return progress.Snapshot{}
	}
	return s.snaps[len(s.snaps)-1]
}
