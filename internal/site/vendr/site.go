// Package vendr discovers and extracts products from the vendr.com software
// marketplace using XPath over the server-rendered HTML.
package vendr

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Name labels this catalog in logs and metrics.
const Name = "vendr"

// Site implements crawler.Discoverer and crawler.Extractor for vendr.
type Site struct {
	fetcher crawler.PageFetcher
	base    *url.URL
	logger  *zap.Logger
}

// New builds a Site rooted at baseURL (e.g. https://www.vendr.com).
func New(fetcher crawler.PageFetcher, baseURL string, logger *zap.Logger) (*Site, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid vendr base url %q", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{fetcher: fetcher, base: base, logger: logger.Named(Name)}, nil
}

// WithFetcher returns a copy of the site that loads pages through f.
func (s *Site) WithFetcher(f crawler.PageFetcher) *Site {
	clone := *s
	clone.fetcher = f
	return &clone
}

func (s *Site) load(ctx context.Context, rawURL string) (*html.Node, error) {
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

func (s *Site) absolute(href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return s.base.ResolveReference(ref).String(), true
}

// texts evaluates expr and returns the trimmed, non-empty text of each match.
func texts(doc *html.Node, expr string) []string {
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if t := strings.TrimSpace(htmlquery.InnerText(n)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
