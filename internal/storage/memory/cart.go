package memory

import (
	"context"
	"sync"

	"github.com/soukmarket/commerce-core/internal/domain/cart"
)

var _ cart.RemoteCart = (*CartStore)(nil)

// CartStore is an in-memory authoritative cart, scoped to one identity.
type CartStore struct {
	mu    sync.Mutex
	lines map[string]cart.Line
	order []string
}

// NewCartStore returns an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{lines: make(map[string]cart.Line)}
}

func (s *CartStore) Load(_ context.Context) ([]cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]cart.Line, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.lines[key])
	}
	return out, nil
}

func (s *CartStore) Put(_ context.Context, l cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := l.Key()
	if _, ok := s.lines[key]; !ok {
		s.order = append(s.order, key)
	}
	s.lines[key] = l
	return nil
}

func (s *CartStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[key]; !ok {
		return cart.ErrLineNotFound
	}
	delete(s.lines, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *CartStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = make(map[string]cart.Line)
	s.order = nil
	return nil
}
