// Package rediscache puts a read-through Redis cache in front of another
// store.Store. Only identifier lookups are cached; every write through the
// cache invalidates the affected document.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/metrics"
	"github.com/shmookey/coconut/pkg/store"
)

type Store struct {
	next   store.Store
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps next. Prefix may be empty; a zero ttl keeps entries until they
// are invalidated.
func New(next store.Store, client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "coconut:doc:"
	}
	return &Store{next: next, client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(collection string, id store.ID) string {
	return s.prefix + collection + ":" + string(id)
}

func (s *Store) Insert(ctx context.Context, collection string, fields map[string]interface{}) (store.ID, error) {
	return s.next.Insert(ctx, collection, fields)
}

func (s *Store) Update(ctx context.Context, collection string, id store.ID, u store.Update) error {
	err := s.next.Update(ctx, collection, id, u)
	if derr := s.client.Del(ctx, s.key(collection, id)).Err(); derr != nil {
		logger.Warnf("rediscache: invalidate %s %s: %v", collection, id, derr)
	}
	return err
}

// FindOne serves lookups that name an identifier from the cache and checks
// the remaining criteria against the cached copy.
func (s *Store) FindOne(ctx context.Context, collection string, criteria store.Criteria) (map[string]interface{}, error) {
	id, ok := criteria[store.IDField].(store.ID)
	if !ok {
		return s.next.FindOne(ctx, collection, criteria)
	}
	key := s.key(collection, id)
	b, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		doc, derr := decode(b)
		if derr == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			if !store.Match(doc, criteria) {
				return nil, store.ErrNotFound
			}
			return doc, nil
		}
		logger.Warnf("rediscache: dropping undecodable entry %s: %v", key, derr)
		_ = s.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		logger.Warnf("rediscache: get %s: %v", key, err)
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	// fetch by identifier alone so the cached copy is usable for any criteria
	doc, err := s.next.FindOne(ctx, collection, store.Criteria{store.IDField: id})
	if err != nil {
		return nil, err
	}
	if enc, eerr := encode(doc); eerr == nil {
		if serr := s.client.Set(ctx, key, enc, s.ttl).Err(); serr != nil {
			logger.Warnf("rediscache: set %s: %v", key, serr)
		}
	}
	if !store.Match(doc, criteria) {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (s *Store) Find(ctx context.Context, collection string, criteria store.Criteria, opts store.FindOptions) ([]map[string]interface{}, error) {
	return s.next.Find(ctx, collection, criteria, opts)
}

func (s *Store) EnsureIndex(ctx context.Context, collection, field string, unique bool) error {
	return s.next.EnsureIndex(ctx, collection, field, unique)
}
