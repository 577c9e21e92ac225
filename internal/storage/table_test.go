package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

func TestProductsUpsertSQL(t *testing.T) {
	t.Parallel()

	tbl := ProductsTable(DoUpdate)
	require.NoError(t, tbl.Validate())

	assert.Equal(t,
		"INSERT INTO products (name, category, subcategory, median_price, low_price, high_price, description, url) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (url) DO UPDATE SET subcategory = EXCLUDED.subcategory",
		tbl.UpsertSQL(Postgres))
	assert.Contains(t, tbl.UpsertSQL(SQLite), "VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
}

func TestBooksUpsertSQL(t *testing.T) {
	t.Parallel()

	nothing := BooksTable(DoNothing)
	require.NoError(t, nothing.Validate())
	assert.Contains(t, nothing.UpsertSQL(Postgres), "ON CONFLICT (url) DO NOTHING")

	update := BooksTable(DoUpdate)
	assert.Contains(t, update.UpsertSQL(Postgres),
		"DO UPDATE SET price = EXCLUDED.price, rating = EXCLUDED.rating, stock = EXCLUDED.stock")
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	pg := ProductsTable(DoUpdate).CreateTableSQL(Postgres)
	assert.Contains(t, pg, "CREATE TABLE IF NOT EXISTS products")
	assert.Contains(t, pg, "id SERIAL PRIMARY KEY")
	assert.Contains(t, pg, "url TEXT UNIQUE NOT NULL")
	assert.Contains(t, pg, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")

	lite := BooksTable(DoNothing).CreateTableSQL(SQLite)
	assert.Contains(t, lite, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, lite, "upc TEXT UNIQUE")
	assert.NotContains(t, lite, "created_at")
}

func TestBooksArgsStoreMissingUPCAsNull(t *testing.T) {
	t.Parallel()

	tbl := BooksTable(DoNothing)
	args := tbl.Args(crawler.Record{Name: "A Light in the Attic", URL: "u"})
	require.Len(t, args, len(tbl.Columns))
	assert.Nil(t, args[6])

	args = tbl.Args(crawler.Record{UPC: "a897fe39b1053632", URL: "u"})
	assert.Equal(t, "a897fe39b1053632", args[6])
}

func TestValidateRejectsBadTables(t *testing.T) {
	t.Parallel()

	bad := ProductsTable(DoUpdate)
	bad.Name = "products; DROP TABLE x"
	require.Error(t, bad.Validate())

	bad = ProductsTable(DoUpdate)
	bad.Conflict.Columns = []string{"missing"}
	require.Error(t, bad.Validate())

	bad = BooksTable(DoNothing)
	bad.Conflict.Target = "isbn"
	require.Error(t, bad.Validate())
}

func TestParseConflictAction(t *testing.T) {
	t.Parallel()

	got, err := ParseConflictAction("update")
	require.NoError(t, err)
	assert.Equal(t, DoUpdate, got)

	got, err = ParseConflictAction("Nothing")
	require.NoError(t, err)
	assert.Equal(t, DoNothing, got)

	_, err = ParseConflictAction("replace")
	require.Error(t, err)
}
