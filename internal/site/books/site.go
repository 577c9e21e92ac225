// Package books discovers and extracts titles from the books.toscrape.com
// demo catalog using CSS selectors.
package books

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Name labels this catalog in logs and metrics.
const Name = "books"

// Config tunes listing discovery.
type Config struct {
	BaseURL string
	// DiscoveryWorkers bounds concurrent listing-page fetches.
	DiscoveryWorkers int
	// ListingTimeout bounds each listing-page fetch.
	ListingTimeout time.Duration
}

// Site implements crawler.Discoverer and crawler.Extractor for the catalog.
type Site struct {
	fetcher crawler.PageFetcher
	base    *url.URL
	cfg     Config
	logger  *zap.Logger
}

// New builds a Site. BaseURL always ends with a slash so relative catalogue
// paths resolve beneath it.
func New(fetcher crawler.PageFetcher, cfg Config, logger *zap.Logger) (*Site, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid books base url %q", cfg.BaseURL)
	}
	if cfg.DiscoveryWorkers <= 0 {
		cfg.DiscoveryWorkers = 10
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{fetcher: fetcher, base: base, cfg: cfg, logger: logger.Named(Name)}, nil
}

// WithFetcher returns a copy of the site that loads pages through f.
func (s *Site) WithFetcher(f crawler.PageFetcher) *Site {
	clone := *s
	clone.fetcher = f
	return &clone
}

// Categories returns the single root entry the catalog is crawled from.
// Book categories are read from each book page's breadcrumb instead.
func (s *Site) Categories() []crawler.Category {
	return []crawler.Category{{URL: s.base.String()}}
}

func (s *Site) load(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	// Relative links resolve against the page actually served.
	base := rawURL
	if page.FinalURL != "" {
		base = page.FinalURL
	}
	loc, err := url.Parse(base)
	if err != nil {
		return nil, nil, fmt.Errorf("parse url %s: %w", base, err)
	}
	return doc, loc, nil
}

func resolve(loc *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return loc.ResolveReference(ref).String(), true
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
