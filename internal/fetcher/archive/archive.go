// Package archive decorates a PageFetcher so every fetched page body is also
// written to a blob store under a content-addressed key.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
)

// Config controls where archived pages land.
type Config struct {
	Prefix      string
	ContentType string
}

// Fetcher archives pages returned by the wrapped fetcher. Archive failures are
// logged and never fail the fetch.
type Fetcher struct {
	next   crawler.PageFetcher
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	cfg    Config
	logger *zap.Logger
}

// New wraps next.
func New(next crawler.PageFetcher, blobs crawler.BlobStore, hasher crawler.Hasher, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Fetcher{next: next, blobs: blobs, hasher: hasher, cfg: cfg, logger: logger.Named("archive")}
}

// Fetch delegates and then stores the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	page, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return page, err
	}
	if uri, err := f.store(ctx, page); err != nil {
		f.logger.Warn("archive page failed", zap.String("url", rawURL), zap.Error(err))
	} else {
		f.logger.Debug("page archived", zap.String("url", rawURL), zap.String("uri", uri))
	}
	return page, nil
}

func (f *Fetcher) store(ctx context.Context, page crawler.Page) (string, error) {
	digest, err := f.hasher.Hash(page.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	key := sha256.ObjectKey(f.cfg.Prefix, digest, "html")
	uri, err := f.blobs.PutObject(ctx, key, f.cfg.ContentType, bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return uri, nil
}

var _ crawler.PageFetcher = (*Fetcher)(nil)
