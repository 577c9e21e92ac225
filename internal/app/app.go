// Package app builds the long-lived services a command needs from
// configuration and acts as the dependency container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/archive"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
	"github.com/JakeFAU/catalog-crawler/internal/progress/sinks"
	pspublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/site/books"
	"github.com/JakeFAU/catalog-crawler/internal/site/vendr"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
	"github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/catalog-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/catalog-crawler/internal/worker"
)

// ErrUnknownCatalog is returned for a catalog name no site implements.
var ErrUnknownCatalog = errors.New("unknown catalog")

// App holds configuration, the logger and every resource that must be
// released when the command finishes.
type App struct {
	Config config.Config
	Logger *zap.Logger

	// Progress receives the terminal progress line; nil disables it.
	Progress io.Writer

	mu      sync.Mutex
	closers []func() error
}

// New loads configuration from path (optional) and the environment and
// builds the logger.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithConfig(cfg, logger), nil
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &App{Config: cfg, Logger: logger, Progress: os.Stderr}
}

// OnClose registers fn to run when the App is closed.
func (a *App) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order and flushes the
// logger.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.Logger.Warn("release resource", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

func (a *App) siteConfig(catalog string) (config.SiteConfig, error) {
	switch catalog {
	case vendr.Name:
		return a.Config.Vendr, nil
	case books.Name:
		return a.Config.Books, nil
	default:
		return config.SiteConfig{}, fmt.Errorf("%w: %q", ErrUnknownCatalog, catalog)
	}
}

// Table returns the table definition and conflict policy for a catalog.
func (a *App) Table(catalog string) (storage.Table, error) {
	sc, err := a.siteConfig(catalog)
	if err != nil {
		return storage.Table{}, err
	}
	action, err := storage.ParseConflictAction(sc.OnConflict)
	if err != nil {
		return storage.Table{}, fmt.Errorf("%s.on_conflict: %w", catalog, err)
	}
	if catalog == vendr.Name {
		return storage.ProductsTable(action), nil
	}
	return storage.BooksTable(action), nil
}

// OpenStore connects the configured database for a catalog's table.
func (a *App) OpenStore(ctx context.Context, catalog string) (crawler.Store, error) {
	table, err := a.Table(catalog)
	if err != nil {
		return nil, err
	}
	switch a.Config.DB.Driver {
	case "sqlite":
		store, err := sqlite.NewRecordStore(ctx, a.Config.DB.SQLitePath, table)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.Logger.Info("using sqlite store", zap.String("path", a.Config.DB.SQLitePath), zap.String("table", table.Name))
		return store, nil
	default:
		store, err := postgres.NewRecordStore(ctx, a.Config.DB.PostgresDSN(), table)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.Logger.Info("using postgres store",
			zap.String("host", a.Config.DB.Host),
			zap.String("database", a.Config.DB.Name),
			zap.String("table", table.Name))
		return store, nil
	}
}

// EnsureSchema creates the catalog's table and closes the connection.
func (a *App) EnsureSchema(ctx context.Context, catalog string) error {
	store, err := a.OpenStore(ctx, catalog)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn("close store", zap.Error(err))
		}
	}()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// archiver wraps fetchers with raw page archiving when it is enabled.
func (a *App) archiver(ctx context.Context) (func(crawler.PageFetcher) crawler.PageFetcher, error) {
	if !a.Config.Archive.Enabled {
		return func(f crawler.PageFetcher) crawler.PageFetcher { return f }, nil
	}
	var blobs crawler.BlobStore
	switch a.Config.Archive.Backend {
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.OnClose(client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.Config.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = store
	default:
		store, err := local.New(local.Config{BaseDir: a.Config.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = store
	}
	cfg := archive.Config{Prefix: a.Config.Archive.Prefix, ContentType: a.Config.Archive.ContentType}
	hasher := sha256.New()
	return func(f crawler.PageFetcher) crawler.PageFetcher {
		return archive.New(f, blobs, hasher, cfg, a.Logger)
	}, nil
}

// siteFactory builds a catalog site over a given fetcher.
type siteFactory func(f crawler.PageFetcher) (site, error)

type site interface {
	crawler.Discoverer
	crawler.Extractor
}

func (a *App) siteFactory(catalog string, sc config.SiteConfig) siteFactory {
	if catalog == vendr.Name {
		return func(f crawler.PageFetcher) (site, error) {
			return vendr.New(f, sc.BaseURL, a.Logger)
		}
	}
	return func(f crawler.PageFetcher) (site, error) {
		return books.New(f, books.Config{
			BaseURL:          sc.BaseURL,
			DiscoveryWorkers: a.Config.Crawler.DiscoveryWorkers,
			ListingTimeout:   a.Config.Headless.ListingTimeout(),
		}, a.Logger)
	}
}

// fetchers returns the fetcher used for discovery and the per-worker
// extractor acquirer.
func (a *App) fetchers(ctx context.Context, sc config.SiteConfig, newSite siteFactory) (crawler.PageFetcher, worker.Acquirer, error) {
	wrap, err := a.archiver(ctx)
	if err != nil {
		return nil, nil, err
	}

	if sc.Fetcher == config.FetcherHTTP {
		limiter := ratelimit.New(ratelimit.Config{RPS: a.Config.HTTP.RequestsPerSecond, Burst: a.Config.HTTP.Burst})
		f := wrap(collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.Config.Crawler.UserAgent,
			Timeout:       a.Config.HTTP.Timeout(),
			RespectRobots: a.Config.HTTP.RespectRobots,
		}, limiter))
		s, err := newSite(f)
		if err != nil {
			return nil, nil, err
		}
		return f, worker.Shared(s), nil
	}

	browser, err := headless.New(headless.Config{
		CDPURL:            a.Config.Headless.CDPURL,
		UserAgent:         a.Config.Crawler.UserAgent,
		NavigationTimeout: a.Config.Headless.NavTimeout(),
		BlockImages:       a.Config.Headless.BlockImages,
		MaxParallel:       a.Config.Crawler.DiscoveryWorkers,
	}, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}
	a.OnClose(func() error {
		browser.Close()
		return nil
	})

	acquire := func(ctx context.Context) (crawler.Extractor, func(), error) {
		session, err := browser.NewSession(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("open browser tab: %w", err)
		}
		s, err := newSite(wrap(session))
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return s, session.Close, nil
	}
	return wrap(browser), acquire, nil
}

func (a *App) publisher(ctx context.Context, catalog string) (crawler.Publisher, error) {
	if !a.Config.Notify.Enabled {
		return nil, nil
	}
	pub, err := pspublisher.Dial(ctx, a.Config.Notify.ProjectID, a.Config.Notify.TopicName, map[string]string{"catalog": catalog})
	if err != nil {
		return nil, fmt.Errorf("init notifications: %w", err)
	}
	a.OnClose(pub.Close)
	return pub, nil
}

func (a *App) progressSinks() []progress.Sink {
	out := []progress.Sink{sinks.NewLogSink(a.Logger)}
	if a.Progress != nil {
		out = append(out, sinks.NewLineSink(a.Progress))
	}
	if prom, err := sinks.NewPrometheusSink(nil); err != nil {
		a.Logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		out = append(out, prom)
	}
	return out
}

// BuildPipeline assembles a ready-to-run pipeline for catalog. The pipeline
// owns the store it opens.
func (a *App) BuildPipeline(ctx context.Context, catalog string) (*pipeline.Pipeline, error) {
	sc, err := a.siteConfig(catalog)
	if err != nil {
		return nil, err
	}
	newSite := a.siteFactory(catalog, sc)
	fetcher, acquire, err := a.fetchers(ctx, sc, newSite)
	if err != nil {
		return nil, err
	}
	discoverer, err := newSite(fetcher)
	if err != nil {
		return nil, err
	}

	categories := sc.Categories
	if catalog == books.Name {
		categories = discoverer.(*books.Site).Categories()
	}

	pub, err := a.publisher(ctx, catalog)
	if err != nil {
		return nil, err
	}
	store, err := a.OpenStore(ctx, catalog)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Catalog:          catalog,
		Categories:       categories,
		Workers:          a.Config.Crawler.Workers,
		QueueDepth:       a.Config.Crawler.QueueDepth,
		IdleTimeout:      a.Config.Crawler.IdleTimeout(),
		ProgressInterval: a.Config.Crawler.ProgressInterval(),
		ShutdownTimeout:  a.Config.Crawler.ShutdownTimeout(),
		WriteTimeout:     a.Config.DB.WriteTimeout(),
	}, discoverer, acquire, store, pub, a.Logger, a.progressSinks()...), nil
}

// ServeStatus runs the status server until ctx ends when metrics.addr is
// set. It returns immediately otherwise.
func (a *App) ServeStatus(ctx context.Context, source api.ProgressSource) error {
	if a.Config.Metrics.Addr == "" {
		return nil
	}
	server := api.NewServer(source, nil, a.Logger)
	if err := server.ListenAndServe(ctx, a.Config.Metrics.Addr); err != nil {
		return fmt.Errorf("serve status: %w", err)
	}
	return nil
}
