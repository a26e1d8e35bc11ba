// Package memory provides an in-process document store for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

// ErrClosed is returned by a session after Close.
var ErrClosed = errors.New("memory session closed")

// Store keeps inserted documents per collection. Sessions share the store, so
// documents survive Close and accumulate across runs.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]any
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]any)}
}

// Connect implements scrape.Connector; the URI is ignored.
func (s *Store) Connect(context.Context, string) (scrape.Session, error) {
	return &session{store: s}, nil
}

// Documents returns a copy of the documents inserted into collection.
func (s *Store) Documents(collection string) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	out := make([]any, len(docs))
	copy(out, docs)
	return out
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) insert(collection string, doc any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], doc)
}

type session struct {
	mu     sync.Mutex
	store  *Store
	closed bool
}

func (s *session) Insert(_ context.Context, collection string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.store.insert(collection, doc)
	return nil
}

func (s *session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
