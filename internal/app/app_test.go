package app

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

const (
	categoryHTML = `<html><body>
<a href="/categories/devops/monitoring">Monitoring</a>
</body></html>`
	listingHTML = `<html><body>
<a href="/marketplace/datadog">Datadog</a>
<a href="/marketplace/grafana">Grafana</a>
<a href="/marketplace/missing">Missing</a>
</body></html>`
)

func newFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	pages := map[string]string{
		"/categories/devops":            categoryHTML,
		"/categories/devops/monitoring": listingHTML,
		"/marketplace/datadog":          `<html><body><h1>Datadog</h1></body></html>`,
		"/marketplace/grafana":          `<html><body><h1>Grafana</h1><div class="read-more-box">Dashboards.</div></body></html>`,
	}
	for path, body := range pages {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DB: config.DBConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "catalog.db"), WriteTimeoutSeconds: 5},
		Crawler: config.CrawlerConfig{
			Workers: 3, QueueDepth: 4, DiscoveryWorkers: 2,
			IdleTimeoutSeconds: 1, ProgressIntervalMs: 10, ShutdownTimeoutSeconds: 10,
		},
		HTTP:     config.HTTPConfig{TimeoutSeconds: 5},
		Headless: config.HeadlessConfig{NavTimeoutSec: 5, ListingTimeoutSec: 5},
		Vendr: config.SiteConfig{
			BaseURL:    baseURL,
			Fetcher:    config.FetcherHTTP,
			OnConflict: config.ConflictUpdate,
			Categories: []crawler.Category{{URL: baseURL + "/categories/devops", Name: "DevOps"}},
		},
		Books: config.SiteConfig{
			BaseURL: "https://books.toscrape.com/", Fetcher: config.FetcherHeadless, OnConflict: config.ConflictNothing,
		},
		Archive: config.ArchiveConfig{Enabled: true, Backend: "local", Dir: filepath.Join(dir, "archive"), Prefix: "pages"},
	}
}

func TestTableFollowsConflictPolicy(t *testing.T) {
	t.Parallel()

	a := NewWithConfig(testConfig(t, "https://www.vendr.com"), zap.NewNop())

	products, err := a.Table("vendr")
	require.NoError(t, err)
	assert.Equal(t, "products", products.Name)
	assert.Equal(t, storage.DoUpdate, products.Conflict.Action)

	books, err := a.Table("books")
	require.NoError(t, err)
	assert.Equal(t, "books_data", books.Name)
	assert.Equal(t, storage.DoNothing, books.Conflict.Action)

	_, err = a.Table("amazon")
	require.ErrorIs(t, err, ErrUnknownCatalog)
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://www.vendr.com")
	a := NewWithConfig(cfg, nil)
	require.NoError(t, a.EnsureSchema(context.Background(), "books"))
	require.NoError(t, a.EnsureSchema(context.Background(), "books"))

	db, err := sql.Open("sqlite3", cfg.DB.SQLitePath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM books_data").Scan(&n))
	assert.Zero(t, n)
}

func TestBuildPipelineRunsVendrOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newFixture(t)
	cfg := testConfig(t, srv.URL)
	a := NewWithConfig(cfg, zap.NewNop())
	var line bytes.Buffer
	a.Progress = &line
	defer a.Close()

	ctx := context.Background()
	p, err := a.BuildPipeline(ctx, "vendr")
	require.NoError(t, err)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Discovered)
	assert.Equal(t, int64(2), summary.Saved)
	assert.Equal(t, int64(1), summary.Absent)
	assert.Contains(t, line.String(), "[progress]: 3/3 (100.0%)\n")

	db, err := sql.Open("sqlite3", cfg.DB.SQLitePath)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Query("SELECT name, subcategory, median_price FROM products ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var name, sub, median string
		require.NoError(t, rows.Scan(&name, &sub, &median))
		assert.Equal(t, "Monitoring", sub)
		assert.Equal(t, crawler.NotAvailable, median)
		got = append(got, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Datadog", "Grafana"}, got)

	archived, err := os.ReadDir(filepath.Join(cfg.Archive.Dir, "pages"))
	require.NoError(t, err)
	assert.NotEmpty(t, archived)
}

func TestBuildPipelineUnknownCatalog(t *testing.T) {
	t.Parallel()

	a := NewWithConfig(testConfig(t, "https://www.vendr.com"), nil)
	_, err := a.BuildPipeline(context.Background(), "amazon")
	require.ErrorIs(t, err, ErrUnknownCatalog)
}

func TestServeStatusDisabled(t *testing.T) {
	t.Parallel()

	a := NewWithConfig(testConfig(t, "https://www.vendr.com"), nil)
	require.NoError(t, a.ServeStatus(context.Background(), nil))
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	t.Parallel()

	a := NewWithConfig(testConfig(t, "https://www.vendr.com"), nil)
	var order []int
	a.OnClose(func() error { order = append(order, 1); return nil })
	a.OnClose(func() error { order = append(order, 2); return nil })
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
