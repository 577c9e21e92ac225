package discovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

type fakeDiscoverer struct {
	subs   map[string][]crawler.Link
	leaves map[string][]string
}

func (f fakeDiscoverer) Subcategories(_ context.Context, categoryURL string) []crawler.Link {
	return f.subs[categoryURL]
}

func (f fakeDiscoverer) LeafLinks(_ context.Context, listingURL string) []string {
	return f.leaves[listingURL]
}

func TestCollectWalksHierarchy(t *testing.T) {
	t.Parallel()

	d := fakeDiscoverer{
		subs: map[string][]crawler.Link{
			"https://v/categories/devops": {
				{URL: "https://v/categories/devops/ci", Name: "CI"},
				{URL: "https://v/categories/devops/monitoring", Name: "Monitoring"},
			},
		},
		leaves: map[string][]string{
			"https://v/categories/devops/ci":         {"https://v/marketplace/circleci"},
			"https://v/categories/devops/monitoring": {"https://v/marketplace/datadog", "https://v/marketplace/circleci"},
		},
	}
	items := Collect(context.Background(), d, []crawler.Category{{URL: "https://v/categories/devops", Name: "DevOps"}}, nil)

	require.Equal(t, []crawler.WorkItem{
		{URL: "https://v/marketplace/circleci", Category: "DevOps", Subcategory: "CI"},
		{URL: "https://v/marketplace/datadog", Category: "DevOps", Subcategory: "Monitoring"},
		{URL: "https://v/marketplace/circleci", Category: "DevOps", Subcategory: "Monitoring"},
	}, items)
}

func TestCollectFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	d := fakeDiscoverer{
		leaves: map[string][]string{
			"https://v/categories/it": {"https://v/marketplace/a", "https://v/marketplace/b"},
		},
	}
	items := Collect(context.Background(), d, []crawler.Category{{URL: "https://v/categories/it", Name: "IT Infrastructure"}}, nil)

	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, crawler.DefaultSubcategory, item.Subcategory)
		require.Equal(t, "IT Infrastructure", item.Category)
	}
}

func TestCollectEmptyCategoryYieldsNothing(t *testing.T) {
	t.Parallel()

	items := Collect(context.Background(), fakeDiscoverer{}, []crawler.Category{{URL: "https://v/x", Name: "X"}}, nil)
	require.Empty(t, items)
}

func TestCollectStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := fakeDiscoverer{leaves: map[string][]string{"https://v/a": {"https://v/marketplace/a"}}}
	require.Empty(t, Collect(ctx, d, []crawler.Category{{URL: "https://v/a"}}, nil))
}

func TestFanOutPreservesOrderAndBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	out := FanOut(context.Background(), 3, 10, func(_ context.Context, i int) []int {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []int{i * 10, i*10 + 1}
	})

	require.Len(t, out, 20)
	for i := 0; i < 10; i++ {
		require.Equal(t, i*10, out[2*i])
	}
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFanOutZero(t *testing.T) {
	t.Parallel()

	require.Nil(t, FanOut(context.Background(), 10, 0, func(context.Context, int) []string { return []string{"x"} }))
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b", "a", "c", "b"}))
	require.Equal(t,
		[]string{"https://books.toscrape.com/catalogue/a_1/index.html"},
		Dedupe([]string{
			"https://books.toscrape.com/catalogue/a_1/index.html",
			"https://Books.ToScrape.com/catalogue/a_1/index.html#reviews",
		}))
}
