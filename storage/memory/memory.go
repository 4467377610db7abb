// Package memory provides a thread-safe in-memory implementation of
// storage.Store. Suitable for testing, demos, and single-process use.
package memory

import (
	"strings"
	"sync"

	"github.com/jmcleod/lockbox/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func cloneDoc(doc []byte) []byte {
	return append([]byte(nil), doc...)
}

func (s *Store) Get(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *Store) Set(path string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = cloneDoc(doc)
	return nil
}

func (s *Store) SetIfAbsent(path string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[path]; ok {
		return storage.ErrExists
	}
	s.data[path] = cloneDoc(doc)
	return nil
}

func (s *Store) Update(path string, fn func(doc []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[path]
	if !ok {
		return storage.ErrNotFound
	}
	updated, err := fn(cloneDoc(doc))
	if err != nil {
		return err
	}
	s.data[path] = cloneDoc(updated)
	return nil
}

func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, path)
	return nil
}

func (s *Store) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for path := range s.data {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}
