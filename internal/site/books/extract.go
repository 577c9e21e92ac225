package books

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Extract loads a book page. Pages without the product heading are absent.
func (s *Site) Extract(ctx context.Context, item crawler.WorkItem) (crawler.Record, bool) {
	doc, loc, err := s.load(ctx, item.URL)
	if err != nil {
		s.logger.Debug("book fetch failed", zap.String("url", item.URL), zap.Error(err))
		return crawler.Record{}, false
	}
	main := doc.Find(".product_main").First()
	title := squash(main.Find("h1").First().Text())
	if title == "" {
		s.logger.Debug("book heading missing", zap.String("url", item.URL))
		return crawler.Record{}, false
	}

	category := squash(doc.Find(".breadcrumb li:nth-child(3) a").First().Text())
	if category == "" {
		category = item.Category
	}

	rating := ""
	if class, ok := main.Find(".star-rating").First().Attr("class"); ok {
		rating = strings.TrimSpace(strings.ReplaceAll(class, "star-rating", ""))
	}

	imageURL := ""
	if src, ok := doc.Find(".item.active img").First().Attr("src"); ok {
		imageURL, _ = resolve(loc, src)
	}

	attrs := attributes(doc)
	return crawler.Record{
		Name:        title,
		Category:    crawler.OrNA(category),
		Subcategory: item.Subcategory,
		URL:         item.URL,
		Description: crawler.OrNA(squash(doc.Find("#product_description + p").First().Text())),
		Price:       crawler.OrNA(squash(main.Find(".price_color").First().Text())),
		Rating:      crawler.OrNA(rating),
		Stock:       crawler.OrNA(squash(main.Find(".availability").First().Text())),
		UPC:         attrs["UPC"],
		ImageURL:    crawler.OrNA(imageURL),
		Attributes:  attrs,
		ScrapedAt:   time.Now().UTC(),
	}, true
}

// attributes reads the product information table into header → value pairs.
func attributes(doc *goquery.Document) map[string]string {
	attrs := make(map[string]string)
	doc.Find("table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		key := squash(row.Find("th").First().Text())
		if key == "" {
			return
		}
		attrs[key] = squash(row.Find("td").First().Text())
	})
	return attrs
}
