// Package headless renders pages in Chrome via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// ErrBrowserUnavailable is returned when no browser could be started or
// reached at the configured endpoint.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// Config controls the behavior of the rendered fetcher.
type Config struct {
	// CDPURL points at a running browser's DevTools endpoint. Empty starts a
	// local headless Chrome.
	CDPURL            string
	UserAgent         string
	NavigationTimeout time.Duration
	BlockImages       bool
	// MaxParallel bounds concurrent one-shot Fetch calls. Sessions are not
	// counted.
	MaxParallel int
}

// Browser owns one browser process (or remote connection). One-shot fetches
// open a throwaway tab; sessions keep a tab for their whole lifetime.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	limiter       chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New starts (or attaches to) a browser. The returned Browser must be closed.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CDPURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		if cfg.BlockImages {
			opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// An empty Run starts the browser so failures surface here, not on the
	// first page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		limiter:       limiter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser (or detaches from a remote one).
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// Fetch renders rawURL in a fresh tab that is closed afterwards.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return crawler.Page{}, err
	}
	defer b.release()

	s, err := b.NewSession(ctx)
	if err != nil {
		return crawler.Page{}, err
	}
	defer s.Close()
	return s.Fetch(ctx, rawURL)
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

var _ crawler.PageFetcher = (*Browser)(nil)
