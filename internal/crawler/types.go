package crawler

import "time"

// NotAvailable is stored for optional fields the page did not render.
const NotAvailable = "N/A"

// DefaultSubcategory labels the synthetic group used when a category exposes
// no subcategory links of its own.
const DefaultSubcategory = "General"

// Category is a top-level entry point of a catalog crawl.
type Category struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// Link is a discovered child listing (URL plus display name).
type Link struct {
	URL  string
	Name string
}

// WorkItem is a single product page to extract along with its classification.
type WorkItem struct {
	URL         string
	Category    string
	Subcategory string
}

// Pricing carries site-rendered price strings; values are never parsed.
type Pricing struct {
	Median string `json:"median"`
	Low    string `json:"low"`
	High   string `json:"high"`
}

// Record is a structured extraction result ready for storage.
type Record struct {
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory,omitempty"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Pricing     Pricing           `json:"pricing"`
	Price       string            `json:"price,omitempty"`
	Rating      string            `json:"rating,omitempty"`
	Stock       string            `json:"stock,omitempty"`
	UPC         string            `json:"upc,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ScrapedAt   time.Time         `json:"scraped_at"`
}

// Page is the raw result of a PageFetcher call.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// OrNA returns s, or NotAvailable when s is blank.
func OrNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
