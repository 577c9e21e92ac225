package vendr

import (
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/discovery"
)

const (
	subcategoryXPath = `//a[contains(@href, "/categories/")]`
	productXPath     = `//a[contains(@href, "/marketplace/")]`
)

// Subcategories returns category links nested below the category root, e.g.
// /categories/devops/ci-cd. Failures yield an empty slice.
func (s *Site) Subcategories(ctx context.Context, categoryURL string) []crawler.Link {
	doc, err := s.load(ctx, categoryURL)
	if err != nil {
		s.logger.Warn("subcategory discovery failed", zap.String("url", categoryURL), zap.Error(err))
		return nil
	}
	anchors, err := htmlquery.QueryAll(doc, subcategoryXPath)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []crawler.Link
	for _, a := range anchors {
		abs, ok := s.absolute(htmlquery.SelectAttr(a, "href"))
		if !ok || !nested(abs) {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, crawler.Link{
			URL:  abs,
			Name: strings.Join(strings.Fields(htmlquery.InnerText(a)), " "),
		})
	}
	return links
}

// LeafLinks returns the product pages linked from a listing. Links carrying a
// query string are filters or tracking variants and are skipped.
func (s *Site) LeafLinks(ctx context.Context, listingURL string) []string {
	doc, err := s.load(ctx, listingURL)
	if err != nil {
		s.logger.Warn("product discovery failed", zap.String("url", listingURL), zap.Error(err))
		return nil
	}
	anchors, err := htmlquery.QueryAll(doc, productXPath)
	if err != nil {
		return nil
	}
	links := make([]string, 0, len(anchors))
	for _, a := range anchors {
		href := htmlquery.SelectAttr(a, "href")
		if href == "" || strings.Contains(href, "?") {
			continue
		}
		if abs, ok := s.absolute(href); ok {
			links = append(links, abs)
		}
	}
	return discovery.Dedupe(links)
}

// nested reports whether the link points below a top-level category.
func nested(abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return strings.Count(strings.TrimSuffix(u.Path, "/"), "/") > 2
}
