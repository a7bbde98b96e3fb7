package redisstore

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-portal-client/session"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "portal:session:"

// Store is a session.Storage in Redis. Each entry is a JSON value under
// "<prefix><name>" with a TTL matching its expiry, so Redis drops expired
// entries on its own.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ session.Storage = (*Store)(nil)

// New creates a Redis-backed storage. Prefix may be empty; give each
// profile its own prefix to keep sessions apart.
func New(client redis.UniversalClient, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("[redisstore New] client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) Get(ctx context.Context, name string) (*http.Cookie, error) {
	b, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[redisstore Get] %s", name)
	}

	var e session.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrapf(err, "[redisstore Get] malformed entry %s", name)
	}
	c := e.Cookie(name)
	if session.Expired(c, time.Now()) {
		_ = s.client.Del(ctx, s.key(name)).Err()
		return nil, session.ErrNotFound
	}
	return c, nil
}

func (s *Store) Set(ctx context.Context, cookie *http.Cookie) error {
	var ttl time.Duration
	if !cookie.Expires.IsZero() {
		ttl = time.Until(cookie.Expires)
		if ttl <= 0 {
			// already expired
			return s.Delete(ctx, cookie.Name)
		}
	}

	b, err := json.Marshal(session.EntryFromCookie(cookie))
	if err != nil {
		return errors.Wrapf(err, "[redisstore Set] %s", cookie.Name)
	}
	return errors.Wrapf(s.client.Set(ctx, s.key(cookie.Name), b, ttl).Err(), "[redisstore Set] %s", cookie.Name)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return errors.Wrapf(s.client.Del(ctx, s.key(name)).Err(), "[redisstore Delete] %s", name)
}
