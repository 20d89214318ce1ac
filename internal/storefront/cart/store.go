package cart

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// Persistence loads and saves carts by owner. Load returns an empty cart
// for an unknown owner. Saving an empty cart may delete it.
type Persistence interface {
	Load(ctx context.Context, owner string) (*Cart, error)
	Save(ctx context.Context, owner string, c *Cart) error
}

// Store applies cart operations through a Persistence adapter.
type Store struct {
	persist Persistence
	now     func() time.Time
}

// NewStore creates a Store backed by p.
func NewStore(p Persistence) *Store {
	return &Store{persist: p, now: time.Now}
}

// Get returns the owner's cart.
func (s *Store) Get(ctx context.Context, owner string) (*Cart, error) {
	c, err := s.persist.Load(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return c, nil
}

// Add merges l into the owner's cart. AddedAt is stamped when zero.
func (s *Store) Add(ctx context.Context, owner string, l Line) (*Cart, error) {
	if l.AddedAt.IsZero() {
		l.AddedAt = s.now().UTC()
	}
	return s.update(ctx, owner, func(c *Cart) error { return c.Add(l) })
}

// SetQuantity sets the quantity of a line; below 1 removes it.
func (s *Store) SetQuantity(ctx context.Context, owner string, k LineKey, qty int) (*Cart, error) {
	return s.update(ctx, owner, func(c *Cart) error { return c.SetQuantity(k, qty) })
}

// Remove deletes a line.
func (s *Store) Remove(ctx context.Context, owner string, k LineKey) (*Cart, error) {
	return s.update(ctx, owner, func(c *Cart) error { return c.Remove(k) })
}

// Clear empties the owner's cart. Clearing an empty cart succeeds.
func (s *Store) Clear(ctx context.Context, owner string) error {
	if err := s.persist.Save(ctx, owner, &Cart{}); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

func (s *Store) update(ctx context.Context, owner string, fn func(*Cart) error) (*Cart, error) {
	c, err := s.persist.Load(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.persist.Save(ctx, owner, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// MemoryPersistence keeps carts in process memory.
type MemoryPersistence struct {
	mu    sync.Mutex
	carts map[string]Cart
}

var _ Persistence = (*MemoryPersistence)(nil)

// NewMemoryPersistence creates an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{carts: make(map[string]Cart)}
}

// Load implements Persistence.
func (m *MemoryPersistence) Load(_ context.Context, owner string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[owner]
	return &Cart{Lines: append([]Line(nil), c.Lines...)}, nil
}

// Save implements Persistence.
func (m *MemoryPersistence) Save(_ context.Context, owner string, c *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.IsEmpty() {
		delete(m.carts, owner)
		return nil
	}
	m.carts[owner] = Cart{Lines: append([]Line(nil), c.Lines...)}
	return nil
}
