package vendr

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const (
	headingXPath     = `//h1//text()`
	descriptionXPath = `//div[contains(@class, "read-more-box")]//text()`
	medianXPath      = `//span[contains(text(), "Median buyer pays")]/following-sibling::div//span[contains(text(), "$")]`
	rangeXPath       = `//div[contains(@class, "_rangeSlider_")]//span[contains(text(), "$")]`
)

// Extract loads a product page. Pages without a heading are absent.
func (s *Site) Extract(ctx context.Context, item crawler.WorkItem) (crawler.Record, bool) {
	doc, err := s.load(ctx, item.URL)
	if err != nil {
		s.logger.Debug("product fetch failed", zap.String("url", item.URL), zap.Error(err))
		return crawler.Record{}, false
	}
	heading := texts(doc, headingXPath)
	if len(heading) == 0 {
		s.logger.Debug("product heading missing", zap.String("url", item.URL))
		return crawler.Record{}, false
	}

	pricing := crawler.Pricing{
		Median: crawler.NotAvailable,
		Low:    crawler.NotAvailable,
		High:   crawler.NotAvailable,
	}
	if median := texts(doc, medianXPath); len(median) > 0 {
		pricing.Median = median[0]
	}
	slider := texts(doc, rangeXPath)
	if len(slider) > 0 {
		pricing.Low = slider[0]
	}
	if len(slider) > 1 {
		pricing.High = slider[len(slider)-1]
	}

	return crawler.Record{
		Name:        heading[0],
		Category:    item.Category,
		Subcategory: item.Subcategory,
		URL:         item.URL,
		Description: crawler.OrNA(strings.Join(texts(doc, descriptionXPath), " ")),
		Pricing:     pricing,
		ScrapedAt:   time.Now().UTC(),
	}, true
}
