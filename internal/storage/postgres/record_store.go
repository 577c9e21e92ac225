// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

// conn is the subset of *pgx.Conn the store needs; pgxmock satisfies it too.
type conn interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close(context.Context) error
}

// dialer opens a replacement connection.
type dialer func(ctx context.Context) (conn, error)

// RecordStore upserts records over a single connection. It is owned by one
// goroutine and is not safe for concurrent use.
//
// pgx closes a connection whose query was interrupted by context
// cancellation, so a write that hits its timeout leaves the store without a
// usable connection. Save dials a new one before the next write when the
// store was built with NewRecordStore.
type RecordStore struct {
	conn   conn
	dial   dialer
	table  storage.Table
	upsert string
}

// NewRecordStore dials Postgres and returns a store for table.
func NewRecordStore(ctx context.Context, dsn string, table storage.Table) (*RecordStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (conn, error) {
		c, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return c, nil
	}
	c, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	s := newRecordStore(c, table)
	s.dial = dial
	return s, nil
}

// NewRecordStoreWithConn constructs a store from an existing connection
// (primarily for testing).
func NewRecordStoreWithConn(c conn, table storage.Table) (*RecordStore, error) {
	if c == nil {
		return nil, fmt.Errorf("conn is required")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return newRecordStore(c, table), nil
}

func newRecordStore(c conn, table storage.Table) *RecordStore {
	return &RecordStore{
		conn:   c,
		table:  table,
		upsert: table.UpsertSQL(storage.Postgres),
	}
}

// EnsureSchema creates the table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, s.table.CreateTableSQL(storage.Postgres)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table.Name, err)
	}
	return nil
}

// Save upserts one record inside its own transaction.
func (s *RecordStore) Save(ctx context.Context, record crawler.Record) (err error) {
	if err := s.reconnect(ctx); err != nil {
		return err
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if _, err = tx.Exec(ctx, s.upsert, s.table.Args(record)...); err != nil {
		return fmt.Errorf("upsert %s: %w", s.table.Name, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// reconnect replaces a connection pgx has closed underneath the store.
func (s *RecordStore) reconnect(ctx context.Context) error {
	c, ok := s.conn.(interface{ IsClosed() bool })
	if !ok || !c.IsClosed() || s.dial == nil {
		return nil
	}
	fresh, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	_ = s.conn.Close(ctx)
	s.conn = fresh
	return nil
}

// Close releases the connection.
func (s *RecordStore) Close(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}

var _ crawler.Store = (*RecordStore)(nil)
