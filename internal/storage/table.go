// Package storage describes the relational tables records are written to and
// renders dialect-specific DDL and upsert statements for them.
package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var validIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Dialect selects placeholder and DDL syntax.
type Dialect int

// Supported SQL dialects.
const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) placeholder(i int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}

func (d Dialect) serialKey() string {
	if d == SQLite {
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "id SERIAL PRIMARY KEY"
}

// ConflictAction decides what happens when a row with the same key exists.
type ConflictAction int

// Conflict actions.
const (
	DoNothing ConflictAction = iota
	DoUpdate
)

// ParseConflictAction maps the configuration spelling onto a ConflictAction.
func ParseConflictAction(s string) (ConflictAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nothing", "":
		return DoNothing, nil
	case "update":
		return DoUpdate, nil
	default:
		return DoNothing, fmt.Errorf("unknown conflict action %q", s)
	}
}

// ConflictPolicy is the ON CONFLICT clause for a table.
type ConflictPolicy struct {
	Target  string
	Action  ConflictAction
	Columns []string
}

// Column is an insertable column with its DDL type.
type Column struct {
	Name string
	Type string
}

// Table binds a record shape to a relational table.
type Table struct {
	Name      string
	Columns   []Column
	CreatedAt bool
	Conflict  ConflictPolicy
	Args      func(crawler.Record) []any
}

// Validate checks identifiers and that update columns exist.
func (t Table) Validate() error {
	if !validIdent.MatchString(t.Name) {
		return fmt.Errorf("invalid table name %q", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	if t.Args == nil {
		return fmt.Errorf("table %s has no args mapper", t.Name)
	}
	known := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if !validIdent.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		known[c.Name] = true
	}
	if !known[t.Conflict.Target] {
		return fmt.Errorf("conflict target %q is not a column of %s", t.Conflict.Target, t.Name)
	}
	if t.Conflict.Action == DoUpdate && len(t.Conflict.Columns) == 0 {
		return fmt.Errorf("table %s: update policy needs at least one column", t.Name)
	}
	for _, c := range t.Conflict.Columns {
		if !known[c] {
			return fmt.Errorf("update column %q is not a column of %s", c, t.Name)
		}
	}
	return nil
}

// CreateTableSQL renders an idempotent CREATE TABLE statement.
func (t Table) CreateTableSQL(d Dialect) string {
	defs := make([]string, 0, len(t.Columns)+2)
	defs = append(defs, d.serialKey())
	for _, c := range t.Columns {
		defs = append(defs, c.Name+" "+c.Type)
	}
	if t.CreatedAt {
		defs = append(defs, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

// UpsertSQL renders the INSERT ... ON CONFLICT statement for one record.
func (t Table) UpsertSQL(d Dialect) string {
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
		marks[i] = d.placeholder(i + 1)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		t.Name, strings.Join(names, ", "), strings.Join(marks, ", "), t.Conflict.Target)
	if t.Conflict.Action == DoNothing {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	sets := make([]string, len(t.Conflict.Columns))
	for i, c := range t.Conflict.Columns {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// ProductsTable is the marketplace table. Updates refresh the subcategory.
func ProductsTable(action ConflictAction) Table {
	return Table{
		Name: "products",
		Columns: []Column{
			{"name", "TEXT"},
			{"category", "TEXT"},
			{"subcategory", "TEXT"},
			{"median_price", "TEXT"},
			{"low_price", "TEXT"},
			{"high_price", "TEXT"},
			{"description", "TEXT"},
			{"url", "TEXT UNIQUE NOT NULL"},
		},
		CreatedAt: true,
		Conflict: ConflictPolicy{
			Target:  "url",
			Action:  action,
			Columns: []string{"subcategory"},
		},
		Args: func(r crawler.Record) []any {
			return []any{
				r.Name, r.Category, r.Subcategory,
				r.Pricing.Median, r.Pricing.Low, r.Pricing.High,
				r.Description, r.URL,
			}
		},
	}
}

// BooksTable is the book catalog table. Updates refresh price, rating and stock.
func BooksTable(action ConflictAction) Table {
	return Table{
		Name: "books_data",
		Columns: []Column{
			{"title", "TEXT"},
			{"category", "TEXT"},
			{"price", "TEXT"},
			{"rating", "TEXT"},
			{"stock", "TEXT"},
			{"description", "TEXT"},
			{"upc", "TEXT UNIQUE"},
			{"image_url", "TEXT"},
			{"url", "TEXT UNIQUE NOT NULL"},
		},
		Conflict: ConflictPolicy{
			Target:  "url",
			Action:  action,
			Columns: []string{"price", "rating", "stock"},
		},
		Args: func(r crawler.Record) []any {
			return []any{
				r.Name, r.Category, r.Price, r.Rating, r.Stock,
				r.Description, nullable(r.UPC), r.ImageURL, r.URL,
			}
		},
	}
}

// nullable keeps absent unique values from colliding with each other.
func nullable(s string) any {
	if s == "" || s == crawler.NotAvailable {
		return nil
	}
	return s
}
