// Package idempotency remembers client-supplied idempotency keys so that a
// retried request returns the original result.
package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// pending marks a key whose first request is still in flight.
const pending = "\x00pending"

// ErrInProgress is returned by Reserve when another request holding the same
// key has not completed yet.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// Store keeps idempotency keys in Redis, scoped per user.
type Store struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewStore creates a Store. A non-positive ttl selects DefaultTTL.
func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:orders:"}
}

// Reserve claims key for userID. It returns ("", nil) when the caller now
// owns the key and must call Complete or Release. When the key was already
// completed it returns the remembered result; when it is still being
// processed it returns ErrInProgress.
func (s *Store) Reserve(ctx context.Context, userID, key string) (string, error) {
	k := s.key(userID, key)
	ok, err := s.rdb.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, "reserve idempotency key")
	}
	if ok {
		return "", nil
	}

	v, err := s.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; try once more.
		return s.Reserve(ctx, userID, key)
	case err != nil:
		return "", errors.Wrap(err, "get idempotency key")
	case v == pending:
		return "", ErrInProgress
	default:
		return v, nil
	}
}

// Complete stores result for a reserved key.
func (s *Store) Complete(ctx context.Context, userID, key, result string) error {
	if err := s.rdb.Set(ctx, s.key(userID, key), result, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete idempotency key")
	}
	return nil
}

// Release forgets a reserved key so the request can be retried.
func (s *Store) Release(ctx context.Context, userID, key string) error {
	if err := s.rdb.Del(ctx, s.key(userID, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

func (s *Store) key(userID, key string) string {
	return s.prefix + userID + ":" + key
}
