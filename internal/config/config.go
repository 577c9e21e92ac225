// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Fetcher modes accepted by the per-site fetcher setting.
const (
	FetcherHTTP     = "http"
	FetcherHeadless = "headless"
)

// Conflict modes accepted by the per-site on_conflict setting.
const (
	ConflictNothing = "nothing"
	ConflictUpdate  = "update"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	DB       DBConfig       `mapstructure:"db"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Vendr    SiteConfig     `mapstructure:"vendr"`
	Books    SiteConfig     `mapstructure:"books"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver              string `mapstructure:"driver"`
	DSN                 string `mapstructure:"dsn"`
	Name                string `mapstructure:"name"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	SQLitePath          string `mapstructure:"sqlite_path"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// CrawlerConfig governs the worker pool and orchestration.
type CrawlerConfig struct {
	Workers                int    `mapstructure:"workers"`
	QueueDepth             int    `mapstructure:"queue_depth"`
	DiscoveryWorkers       int    `mapstructure:"discovery_workers"`
	IdleTimeoutSeconds     int    `mapstructure:"idle_timeout_seconds"`
	ProgressIntervalMs     int    `mapstructure:"progress_interval_ms"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	UserAgent              string `mapstructure:"user_agent"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the rendered fetcher.
type HeadlessConfig struct {
	CDPURL            string `mapstructure:"cdp_url"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	ListingTimeoutSec int    `mapstructure:"listing_timeout_seconds"`
	BlockImages       bool   `mapstructure:"block_images"`
}

// SiteConfig holds the per-site crawl settings.
type SiteConfig struct {
	BaseURL    string             `mapstructure:"base_url"`
	Fetcher    string             `mapstructure:"fetcher"`
	OnConflict string             `mapstructure:"on_conflict"`
	Categories []crawler.Category `mapstructure:"categories"`
}

// ArchiveConfig controls raw page archiving.
type ArchiveConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// NotifyConfig holds metadata for saved-record notifications.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the status server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from an optional .env file, the environment and an
// optional config file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sqlite_path", "catalog.db")
	v.SetDefault("db.write_timeout_seconds", 10)
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.discovery_workers", 10)
	v.SetDefault("crawler.idle_timeout_seconds", 5)
	v.SetDefault("crawler.progress_interval_ms", 1000)
	v.SetDefault("crawler.shutdown_timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.nav_timeout_seconds", 60)
	v.SetDefault("headless.listing_timeout_seconds", 30)
	v.SetDefault("headless.block_images", true)
	v.SetDefault("vendr.base_url", "https://www.vendr.com")
	v.SetDefault("vendr.fetcher", FetcherHTTP)
	v.SetDefault("vendr.on_conflict", ConflictUpdate)
	v.SetDefault("vendr.categories", DefaultVendrCategories())
	v.SetDefault("books.base_url", "https://books.toscrape.com/")
	v.SetDefault("books.fetcher", FetcherHeadless)
	v.SetDefault("books.on_conflict", ConflictNothing)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
}

// bindLegacyEnv maps the historical unprefixed variable names onto their keys.
// The prefixed name always wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"db.name":          {"CATALOG_DB_NAME", "DB_NAME"},
		"db.user":          {"CATALOG_DB_USER", "DB_USER"},
		"db.password":      {"CATALOG_DB_PASSWORD", "DB_PASSWORD"},
		"db.host":          {"CATALOG_DB_HOST", "DB_HOST"},
		"db.port":          {"CATALOG_DB_PORT", "DB_PORT"},
		"crawler.workers":  {"CATALOG_CRAWLER_WORKERS", "MAX_THREADS", "PROCESS_COUNT"},
		"books.base_url":   {"CATALOG_BOOKS_BASE_URL", "BASE_URL"},
		"headless.cdp_url": {"CATALOG_HEADLESS_CDP_URL", "CDP_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// DefaultVendrCategories returns the marketplace categories crawled when none
// are configured.
func DefaultVendrCategories() []crawler.Category {
	return []crawler.Category{
		{URL: "https://www.vendr.com/categories/data-analytics-and-management", Name: "Data Analytics"},
		{URL: "https://www.vendr.com/categories/devops", Name: "DevOps"},
		{URL: "https://www.vendr.com/categories/it-infrastructure", Name: "IT Infrastructure"},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.DiscoveryWorkers <= 0 {
		return fmt.Errorf("crawler.discovery_workers must be > 0")
	}
	if c.Crawler.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.idle_timeout_seconds must be > 0")
	}
	if c.Crawler.ProgressIntervalMs <= 0 {
		return fmt.Errorf("crawler.progress_interval_ms must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Headless.NavTimeoutSec <= 0 || c.Headless.ListingTimeoutSec <= 0 {
		return fmt.Errorf("headless timeouts must be > 0")
	}
	if c.DB.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("db.write_timeout_seconds must be > 0")
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("db.driver must be postgres or sqlite, got %q", c.DB.Driver)
	}
	for name, site := range map[string]SiteConfig{"vendr": c.Vendr, "books": c.Books} {
		if err := site.validate(name); err != nil {
			return err
		}
	}
	if c.Archive.Enabled && c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify is enabled")
	}
	return nil
}

func (s SiteConfig) validate(name string) error {
	if s.BaseURL == "" {
		return fmt.Errorf("%s.base_url must be set", name)
	}
	if s.Fetcher != FetcherHTTP && s.Fetcher != FetcherHeadless {
		return fmt.Errorf("%s.fetcher must be %q or %q", name, FetcherHTTP, FetcherHeadless)
	}
	if s.OnConflict != ConflictNothing && s.OnConflict != ConflictUpdate {
		return fmt.Errorf("%s.on_conflict must be %q or %q", name, ConflictNothing, ConflictUpdate)
	}
	return nil
}

// PostgresDSN returns db.dsn, or a URL assembled from the individual fields.
func (d DBConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// WriteTimeout is the per-record save budget.
func (d DBConfig) WriteTimeout() time.Duration {
	return time.Duration(d.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout bounds a single worker dequeue wait.
func (c CrawlerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ProgressInterval is the progress reporter tick.
func (c CrawlerConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// ShutdownTimeout bounds the drain-and-close sequence.
func (c CrawlerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Timeout bounds a single HTTP fetch.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// NavTimeout bounds one rendered page navigation.
func (h HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(h.NavTimeoutSec) * time.Second
}

// ListingTimeout bounds one listing-page load during discovery.
func (h HeadlessConfig) ListingTimeout() time.Duration {
	return time.Duration(h.ListingTimeoutSec) * time.Second
}
