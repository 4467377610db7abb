// Package bbolt provides a BBolt-backed document store.
package bbolt

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/lockbox/storage"
)

var documentsBucket = []byte("documents")

// Store implements storage.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating documents bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a
// new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(path string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(documentsBucket).Get([]byte(path))
		if data == nil {
			return fmt.Errorf("%s: %w", path, storage.ErrNotFound)
		}
		doc = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Set(path string, doc []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Put([]byte(path), doc)
	})
}

func (s *Store) SetIfAbsent(path string, doc []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(documentsBucket)
		if b.Get([]byte(path)) != nil {
			return fmt.Errorf("%s: %w", path, storage.ErrExists)
		}
		return b.Put([]byte(path), doc)
	})
}

func (s *Store) Update(path string, fn func(doc []byte) ([]byte, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(documentsBucket)
		data := b.Get([]byte(path))
		if data == nil {
			return fmt.Errorf("%s: %w", path, storage.ErrNotFound)
		}
		updated, err := fn(append([]byte(nil), data...))
		if err != nil {
			return err
		}
		return b.Put([]byte(path), updated)
	})
}

func (s *Store) Delete(path string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Delete([]byte(path))
	})
}

func (s *Store) List(prefix string) ([]string, error) {
	var paths []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(documentsBucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			paths = append(paths, string(k))
		}
		return nil
	})
	return paths, err
}
