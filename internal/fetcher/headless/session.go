package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Session is a single long-lived browser tab. It is not safe for concurrent
// use; each worker owns one.
type Session struct {
	browser *Browser
	tabCtx  context.Context
	cancel  context.CancelFunc
	meta    *responseMeta
	once    sync.Once
}

// NewSession opens a tab and prepares it (user agent, image blocking).
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	s := &Session{
		browser: b,
		tabCtx:  tabCtx,
		cancel:  cancel,
		meta:    newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)
	if b.cfg.BlockImages {
		chromedp.ListenTarget(tabCtx, s.blockPaused)
	}

	setupCtx, setupCancel := s.bound(ctx, b.cfg.NavigationTimeout)
	defer setupCancel()
	if err := chromedp.Run(setupCtx, s.setupAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open tab: %v", ErrBrowserUnavailable, err)
	}
	return s, nil
}

// Fetch navigates the tab and returns the rendered DOM.
func (s *Session) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	runCtx, cancel := s.bound(ctx, s.browser.cfg.NavigationTimeout)
	defer cancel()

	s.meta.reset()
	start := time.Now()
	var html, finalURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	status, pageURL := s.meta.snapshotWithFallbacks(rawURL, finalURL)
	if err != nil {
		metrics.ObserveFetch(rawURL, "headless", 0, 0, time.Since(start))
		return crawler.Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}
	metrics.ObserveFetch(rawURL, "headless", status, len(html), time.Since(start))
	if status >= http.StatusBadRequest {
		return crawler.Page{}, fmt.Errorf("render %s: status %d", rawURL, status)
	}
	return crawler.Page{
		URL:        rawURL,
		FinalURL:   pageURL,
		StatusCode: status,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

// Close closes the tab. Safe to call twice.
func (s *Session) Close() {
	s.once.Do(s.cancel)
}

// bound derives a context that carries the tab, expires after timeout and is
// also cancelled when the caller's ctx ends.
func (s *Session) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := s.browser.cfg.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if s.browser.cfg.BlockImages {
			patterns := []*fetch.RequestPattern{{URLPattern: "*", ResourceType: network.ResourceTypeImage}}
			if err := fetch.Enable().WithPatterns(patterns).Do(ctx); err != nil {
				return fmt.Errorf("enable image interception: %w", err)
			}
		}
		return nil
	})
}

// blockPaused fails every intercepted request; only images are intercepted.
func (s *Session) blockPaused(ev any) {
	paused, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	go func() {
		c := chromedp.FromContext(s.tabCtx)
		if c == nil || c.Target == nil {
			return
		}
		execCtx := cdp.WithExecutor(s.tabCtx, c.Target)
		if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
			s.browser.logger.Debug("fail intercepted request", zap.String("url", paused.Request.URL), zap.Error(err))
		}
	}()
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.url = 0, ""
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
