package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

func newStore(t *testing.T, table storage.Table) (*RecordStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	store, err := NewRecordStoreWithDB(db, table)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, db
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()

	store, db := newStore(t, storage.ProductsTable(storage.DoUpdate))
	ctx := context.Background()
	rec := crawler.Record{
		Name: "Datadog", Category: "DevOps", Subcategory: "Monitoring",
		URL:     "https://www.vendr.com/marketplace/datadog",
		Pricing: crawler.Pricing{Median: "$40,000", Low: "$5,000", High: "$300,000"},
	}

	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Save(ctx, rec))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n))
	require.Equal(t, 1, n)
}

func TestProductsUpdatePolicyRefreshesSubcategoryOnly(t *testing.T) {
	t.Parallel()

	store, db := newStore(t, storage.ProductsTable(storage.DoUpdate))
	ctx := context.Background()
	first := crawler.Record{
		Name: "Datadog", Category: "DevOps", Subcategory: "Monitoring",
		URL: "https://www.vendr.com/marketplace/datadog", Description: "original",
	}
	second := first
	second.Subcategory = "Observability"
	second.Description = "changed"

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	var sub, desc string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT subcategory, description FROM products WHERE url = ?", first.URL).Scan(&sub, &desc))
	require.Equal(t, "Observability", sub)
	require.Equal(t, "original", desc)
}

func TestBooksNothingPolicyKeepsFirstRow(t *testing.T) {
	t.Parallel()

	store, db := newStore(t, storage.BooksTable(storage.DoNothing))
	ctx := context.Background()
	first := crawler.Record{Name: "Tipping the Velvet", Price: "£53.74", URL: "https://books/catalogue/tipping/index.html"}
	second := first
	second.Price = "£10.00"

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	var price string
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(price) FROM books_data").Scan(&n, &price))
	require.Equal(t, 1, n)
	require.Equal(t, "£53.74", price)
}

func TestBooksUpdatePolicyRefreshesPrice(t *testing.T) {
	t.Parallel()

	store, db := newStore(t, storage.BooksTable(storage.DoUpdate))
	ctx := context.Background()
	first := crawler.Record{Name: "Soumission", Price: "£50.10", Stock: "In stock", URL: "https://books/catalogue/soumission/index.html"}
	second := first
	second.Price = "£45.00"

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	var price string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT price FROM books_data WHERE url = ?", first.URL).Scan(&price))
	require.Equal(t, "£45.00", price)
}

func TestMissingUPCsDoNotCollide(t *testing.T) {
	t.Parallel()

	store, db := newStore(t, storage.BooksTable(storage.DoNothing))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, crawler.Record{Name: "a", URL: "https://books/a"}))
	require.NoError(t, store.Save(ctx, crawler.Record{Name: "b", URL: "https://books/b"}))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books_data WHERE upc IS NULL").Scan(&n))
	require.Equal(t, 2, n)
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, storage.ProductsTable(storage.DoUpdate))
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestNewRecordStoreOnDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := NewRecordStore(ctx, path, storage.ProductsTable(storage.DoUpdate))
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Save(ctx, crawler.Record{Name: "x", URL: "https://www.vendr.com/marketplace/x"}))
	require.NoError(t, store.Close(ctx))
}
