package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/queue/memory"
)

func TestWorkerProcessesUntilTerminated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	work := memory.NewQueue[crawler.WorkItem](4)
	results := memory.NewQueue[crawler.Record](4)
	for _, u := range []string{"https://x/a", "https://x/missing", "https://x/b"} {
		require.NoError(t, work.Enqueue(ctx, crawler.WorkItem{URL: u, Category: "C"}))
	}
	require.NoError(t, work.Terminate(ctx, 1))

	stats := &Stats{}
	w := New(work, results, Shared(fakeExtractor{}), stats, Config{ID: 1, Catalog: "test"}, zap.NewNop())
	require.NoError(t, w.Run(ctx))

	require.Equal(t, int64(3), work.Completed())
	require.Equal(t, int64(2), stats.Extracted.Load())
	require.Equal(t, int64(1), stats.Absent.Load())
	require.Equal(t, 2, results.Len())

	rec, err := results.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://x/a", rec.URL)
}

func TestWorkerSurvivesIdleTimeouts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	work := memory.NewQueue[crawler.WorkItem](2)
	results := memory.NewQueue[crawler.Record](2)
	w := New(work, results, Shared(fakeExtractor{}), nil, Config{IdleTimeout: 10 * time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // several idle timeouts elapse
	require.NoError(t, work.Enqueue(ctx, crawler.WorkItem{URL: "https://x/late"}))
	require.Eventually(t, func() bool { return results.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, work.Terminate(ctx, 1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on terminator")
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	work := memory.NewQueue[crawler.WorkItem](1)
	w := New(work, memory.NewQueue[crawler.Record](1), Shared(fakeExtractor{}), nil, Config{IdleTimeout: time.Second}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker ignored cancellation")
	}
}

func TestWorkerAcquireFailure(t *testing.T) {
	t.Parallel()

	acquire := func(context.Context) (crawler.Extractor, func(), error) {
		return nil, nil, errors.New("browser unavailable")
	}
	w := New(memory.NewQueue[crawler.WorkItem](1), memory.NewQueue[crawler.Record](1), acquire, nil, Config{}, nil)
	require.ErrorContains(t, w.Run(context.Background()), "browser unavailable")
}

func TestWorkerReleasesExtractor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var mu sync.Mutex
	released := 0
	acquire := func(context.Context) (crawler.Extractor, func(), error) {
		return fakeExtractor{}, func() {
			mu.Lock()
			released++
			mu.Unlock()
		}, nil
	}
	work := memory.NewQueue[crawler.WorkItem](1)
	require.NoError(t, work.Terminate(ctx, 1))
	w := New(work, memory.NewQueue[crawler.Record](1), acquire, nil, Config{}, nil)
	require.NoError(t, w.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, released)
}

func TestWorkerRecoversExtractorPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	work := memory.NewQueue[crawler.WorkItem](2)
	results := memory.NewQueue[crawler.Record](2)
	require.NoError(t, work.Enqueue(ctx, crawler.WorkItem{URL: "https://x/panic"}))
	require.NoError(t, work.Terminate(ctx, 1))

	stats := &Stats{}
	w := New(work, results, Shared(fakeExtractor{}), stats, Config{}, nil)
	require.NoError(t, w.Run(ctx))
	require.Equal(t, int64(1), work.Completed())
	require.Equal(t, int64(1), stats.Absent.Load())
	require.Zero(t, results.Len())
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, item crawler.WorkItem) (crawler.Record, bool) {
	switch item.URL {
	case "https://x/missing":
		return crawler.Record{}, false
	case "https://x/panic":
		panic("nil selection")
	}
	return crawler.Record{Name: "n", URL: item.URL, Category: item.Category}, true
}
