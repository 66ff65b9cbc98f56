package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/storefront/internal/catalog"
)

// Store is an in-memory catalog for local development and tests.
type Store struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

func NewStore(products ...catalog.Product) *Store {
	s := &Store{products: make(map[string]catalog.Product)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) Upsert(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) FindProducts(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}
