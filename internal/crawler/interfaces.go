package crawler

import (
	"context"
	"io"
)

// PageFetcher retrieves a page by URL.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Discoverer enumerates child links from listing pages. Both methods are
// best-effort and return an empty slice on any failure.
type Discoverer interface {
	Subcategories(ctx context.Context, categoryURL string) []Link
	LeafLinks(ctx context.Context, listingURL string) []string
}

// Extractor turns a product page into a Record. The boolean is false when the
// page could not be fetched or did not contain the anchor element.
type Extractor interface {
	Extract(ctx context.Context, item WorkItem) (Record, bool)
}

// Store persists records with upsert semantics. Implementations are not safe
// for concurrent use; a single sink goroutine owns each Store.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, record Record) error
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications about saved records.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests used to name archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator creates unique run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
