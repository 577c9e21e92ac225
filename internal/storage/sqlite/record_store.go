// Package sqlite provides a file-backed record store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

// RecordStore upserts records into a SQLite database through one connection.
type RecordStore struct {
	db     *sql.DB
	table  storage.Table
	upsert string
}

// NewRecordStore opens (creating if needed) the database at path.
func NewRecordStore(ctx context.Context, path string, table storage.Table) (*RecordStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db.sqlite_path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store, err := NewRecordStoreWithDB(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithDB wraps an existing handle. The handle is pinned to a
// single connection so in-memory databases survive between statements.
func NewRecordStoreWithDB(db *sql.DB, table storage.Table) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &RecordStore{
		db:     db,
		table:  table,
		upsert: table.UpsertSQL(storage.SQLite),
	}, nil
}

// EnsureSchema creates the table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.table.CreateTableSQL(storage.SQLite)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table.Name, err)
	}
	return nil
}

// Save upserts one record inside its own transaction.
func (s *RecordStore) Save(ctx context.Context, record crawler.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if _, err = tx.ExecContext(ctx, s.upsert, s.table.Args(record)...); err != nil {
		return fmt.Errorf("upsert %s: %w", s.table.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *RecordStore) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

var _ crawler.Store = (*RecordStore)(nil)
