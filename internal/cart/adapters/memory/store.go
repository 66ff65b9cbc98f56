package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dejobratic/storefront/internal/cart"
)

type Store struct {
	mu    sync.RWMutex
	carts map[string]cart.Cart
}

func NewStore() *Store {
	return &Store{carts: make(map[string]cart.Cart)}
}

func (s *Store) Get(_ context.Context, customerID string) (*cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[customerID]
	if !ok {
		return &cart.Cart{CustomerID: customerID, Items: []cart.Item{}}, nil
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (s *Store) Replace(_ context.Context, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Items = slices.Clone(c.Items)
	s.carts[c.CustomerID] = c
	return nil
}

func (s *Store) Clear(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, customerID)
	return nil
}
