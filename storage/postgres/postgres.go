// Package postgres implements storage.Store backed by PostgreSQL.
//
// Documents live in a single table keyed by path, so the per-path atomicity
// the Store contract requires maps directly onto row-level locking:
// SetIfAbsent is an INSERT with conflict detection and Update is a
// SELECT ... FOR UPDATE inside one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/lockbox/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool), nil
}

// EnsureSchema creates the documents table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			doc  BYTEA NOT NULL
		)`)
	return err
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(path string) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT doc FROM documents WHERE path = $1`, path).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Set(path string, doc []byte) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO documents (path, doc) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET doc = $2`,
		path, doc)
	return err
}

func (s *Store) SetIfAbsent(path string, doc []byte) error {
	tag, err := s.pool.Exec(context.Background(),
		`INSERT INTO documents (path, doc) VALUES ($1, $2)
		 ON CONFLICT (path) DO NOTHING`,
		path, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", path, storage.ErrExists)
	}
	return nil
}

func (s *Store) Update(path string, fn func(doc []byte) ([]byte, error)) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT doc FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", path, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}

	updated, err := fn(doc)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET doc = $2 WHERE path = $1`, path, updated); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(path string) error {
	_, err := s.pool.Exec(context.Background(),
		`DELETE FROM documents WHERE path = $1`, path)
	return err
}

// likeEscaper quotes the LIKE metacharacters. Paths routinely contain `_`
// (base64url ids), which LIKE would otherwise treat as a single-character
// wildcard instead of a literal byte.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) List(prefix string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT path FROM documents WHERE path LIKE $1 ESCAPE '\'`,
		likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}
