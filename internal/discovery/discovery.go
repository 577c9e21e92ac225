// Package discovery walks a catalog's category hierarchy into work items.
package discovery

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Collect walks category → subcategory → leaf links and returns work items
// in discovery order. A category without subcategories is crawled as a single
// synthetic "General" subcategory rooted at the category page.
func Collect(ctx context.Context, d crawler.Discoverer, categories []crawler.Category, logger *zap.Logger) []crawler.WorkItem {
	if logger == nil {
		logger = zap.NewNop()
	}
	var items []crawler.WorkItem
	for _, cat := range categories {
		if ctx.Err() != nil {
			break
		}
		subs := d.Subcategories(ctx, cat.URL)
		if len(subs) == 0 {
			subs = []crawler.Link{{URL: cat.URL, Name: crawler.DefaultSubcategory}}
		}
		logger.Info("category discovered",
			zap.String("category", cat.Name),
			zap.String("url", cat.URL),
			zap.Int("subcategories", len(subs)),
		)
		for _, sub := range subs {
			if ctx.Err() != nil {
				break
			}
			links := d.LeafLinks(ctx, sub.URL)
			logger.Debug("listing scanned",
				zap.String("subcategory", sub.Name),
				zap.String("url", sub.URL),
				zap.Int("links", len(links)),
			)
			for _, link := range links {
				items = append(items, crawler.WorkItem{
					URL:         link,
					Category:    cat.Name,
					Subcategory: sub.Name,
				})
			}
		}
	}
	return items
}

// FanOut runs fn for indexes [0, n) with at most limit concurrent calls and
// concatenates the results in index order. The pool is fully torn down
// before FanOut returns.
func FanOut[T any](ctx context.Context, limit, n int, fn func(ctx context.Context, i int) []T) []T {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	results := make([][]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()

	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// Dedupe drops links that canonicalize to an already seen URL while keeping
// first-seen order and spelling.
func Dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		key, err := crawler.CanonicalURL(s)
		if err != nil {
			key = s
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
