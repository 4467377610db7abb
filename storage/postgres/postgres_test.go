package postgres

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/lockbox/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LOCKBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LOCKBOX_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	// Clean table for test isolation.
	pool.Exec(ctx, "DELETE FROM documents") //nolint:errcheck

	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM documents") //nolint:errcheck
		pool.Close()
	})
	return NewStore(pool)
}

func TestPostgresStore(t *testing.T) {
	s := newTestStore(t)
	path := "users/uid1"
	doc := []byte(`{"email":"a@b.com"}`)

	t.Run("SetAndGet", func(t *testing.T) {
		if err := s.Set(path, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := s.Get(path)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, doc) {
			t.Errorf("Get returned wrong document: %s", got)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := s.Get("users/nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetIfAbsent", func(t *testing.T) {
		if err := s.SetIfAbsent("users/uid2", doc); err != nil {
			t.Fatalf("SetIfAbsent on fresh path failed: %v", err)
		}
		err := s.SetIfAbsent("users/uid2", []byte("other"))
		if !errors.Is(err, storage.ErrExists) {
			t.Errorf("expected ErrExists, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		err := s.Update(path, func(d []byte) ([]byte, error) {
			return append(d, '!'), nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		got, _ := s.Get(path)
		if got[len(got)-1] != '!' {
			t.Error("Update result not persisted")
		}

		err = s.Update("users/nonexistent", func(d []byte) ([]byte, error) { return d, nil })
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Set("data/uid1/passwords/r1", doc) //nolint:errcheck
		s.Set("data/uid1/passwords/r2", doc) //nolint:errcheck
		s.Set("data/uid2/passwords/r1", doc) //nolint:errcheck

		paths, err := s.List("data/uid1/passwords/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(paths) != 2 {
			t.Errorf("expected 2 paths, got %d: %v", len(paths), paths)
		}
	})

	t.Run("ListPrefixIsLiteral", func(t *testing.T) {
		// `_` is a LIKE wildcard; the prefix must match it as a byte.
		s.Set("data/u_1/passwords/r1", doc) //nolint:errcheck
		s.Set("data/uX1/passwords/r1", doc) //nolint:errcheck
		s.Set("data/u%1/passwords/r1", doc) //nolint:errcheck

		paths, err := s.List("data/u_1/passwords/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(paths) != 1 || paths[0] != "data/u_1/passwords/r1" {
			t.Errorf("expected only the literal-prefix match, got %v", paths)
		}

		paths, err = s.List("data/u%1/passwords/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(paths) != 1 || paths[0] != "data/u%1/passwords/r1" {
			t.Errorf("expected only the literal-prefix match, got %v", paths)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := s.Delete("users/uid2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete("users/uid2"); err != nil {
			t.Errorf("second Delete should be a no-op, got %v", err)
		}
	})
}
