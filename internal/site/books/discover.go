package books

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/discovery"
)

var pagerPattern = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+(\d+)`)

// Subcategories always returns nothing; the catalog is flat and paginated.
func (s *Site) Subcategories(context.Context, string) []crawler.Link {
	return nil
}

// LeafLinks reads the pager on listingURL and collects book links from every
// catalogue page in parallel. Without a pager the listing page itself is the
// only page.
func (s *Site) LeafLinks(ctx context.Context, listingURL string) []string {
	first, loc, err := s.loadListing(ctx, listingURL)
	if err != nil {
		s.logger.Warn("listing discovery failed", zap.String("url", listingURL), zap.Error(err))
		return nil
	}
	total, ok := totalPages(first)
	if !ok {
		s.logger.Info("no pager found, using listing page only", zap.String("url", listingURL))
		return discovery.Dedupe(bookLinks(first, loc))
	}
	s.logger.Info("pager found", zap.Int("pages", total))

	return discovery.FanOut(ctx, s.cfg.DiscoveryWorkers, total, func(ctx context.Context, i int) []string {
		pageURL := s.pageURL(i + 1)
		doc, loc, err := s.loadListing(ctx, pageURL)
		if err != nil {
			s.logger.Warn("listing page failed", zap.String("url", pageURL), zap.Error(err))
			return nil
		}
		return discovery.Dedupe(bookLinks(doc, loc))
	})
}

func (s *Site) loadListing(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ListingTimeout)
	defer cancel()
	return s.load(ctx, rawURL)
}

func (s *Site) pageURL(n int) string {
	return s.base.JoinPath("catalogue", fmt.Sprintf("page-%d.html", n)).String()
}

func totalPages(doc *goquery.Document) (int, bool) {
	m := pagerPattern.FindStringSubmatch(doc.Find("li.current").First().Text())
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func bookLinks(doc *goquery.Document, loc *url.URL) []string {
	var links []string
	doc.Find("h3 a").Each(func(_ int, a *goquery.Selection) {
		if abs, ok := resolve(loc, a.AttrOr("href", "")); ok {
			links = append(links, abs)
		}
	})
	return links
}
