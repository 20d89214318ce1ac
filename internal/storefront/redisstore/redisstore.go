// Package redisstore persists storefront carts and checkout sessions in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/storefront/cart"
	"github.com/xenking/storefront/internal/storefront/checkout"
)

var (
	_ cart.Persistence      = (*Store)(nil)
	_ checkout.SessionStore = (*Store)(nil)
)

// Store keeps one JSON value per shopper under cart:<owner> and
// checkout:<owner>. Every save refreshes the TTL.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New creates a Store. A non-positive ttl defaults to 30 days.
func New(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func cartKey(owner string) string    { return "cart:" + owner }
func sessionKey(owner string) string { return "checkout:" + owner }

// Load implements cart.Persistence.
func (s *Store) Load(ctx context.Context, owner string) (*cart.Cart, error) {
	var c cart.Cart
	found, err := s.get(ctx, cartKey(owner), &c)
	if err != nil || !found {
		return &cart.Cart{}, err
	}
	return &c, nil
}

// Save implements cart.Persistence. An empty cart deletes the key.
func (s *Store) Save(ctx context.Context, owner string, c *cart.Cart) error {
	if c.IsEmpty() {
		if err := s.client.Del(ctx, cartKey(owner)).Err(); err != nil {
			return errors.Wrap(err, "redis del")
		}
		return nil
	}
	return s.set(ctx, cartKey(owner), c)
}

// LoadSession implements checkout.SessionStore.
func (s *Store) LoadSession(ctx context.Context, owner string) (*checkout.Session, error) {
	var sess checkout.Session
	found, err := s.get(ctx, sessionKey(owner), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return checkout.NewSession(), nil
	}
	return &sess, nil
}

// SaveSession implements checkout.SessionStore.
func (s *Store) SaveSession(ctx context.Context, owner string, sess *checkout.Session) error {
	return s.set(ctx, sessionKey(owner), sess)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "redis get")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
