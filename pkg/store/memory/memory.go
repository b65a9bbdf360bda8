package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/store"
)

// Store is an in-process store.Store used for tests and for running without
// a database. Documents are deep-copied on the way in and out.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	docs    map[store.ID]map[string]interface{}
	order   []store.ID
	indexes map[string]bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (m *Store) col(name string) *collection {
	c, ok := m.collections[name]
	if !ok {
		c = &collection{docs: map[store.ID]map[string]interface{}{}, indexes: map[string]bool{}}
		m.collections[name] = c
	}
	return c
}

func (m *Store) Insert(ctx context.Context, name string, fields map[string]interface{}) (store.ID, error) {
	doc, err := store.Clone(fields)
	if err != nil {
		return "", err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.col(name)
	id := store.ID(ulid.Make().String())
	if v, ok := doc[store.IDField].(store.ID); ok && v != "" {
		id = v
	}
	if _, exists := c.docs[id]; exists {
		return "", errors.Wrapf(store.ErrDuplicateKey, "%s: _id %s", name, id)
	}
	doc[store.IDField] = id
	if err := c.checkUnique(id, doc); err != nil {
		return "", errors.Wrap(err, name)
	}
	c.docs[id] = doc
	c.order = append(c.order, id)
	return id, nil
}

func (m *Store) Update(ctx context.Context, name string, id store.ID, u store.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.col(name)
	cur, ok := c.docs[id]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "%s %s", name, id)
	}
	next, err := store.Clone(cur)
	if err != nil {
		return err
	}
	upd := store.Update{Unset: u.Unset}
	if u.Set != nil {
		set, err := store.Clone(u.Set)
		if err != nil {
			return err
		}
		upd.Set = set
	}
	if err := store.ApplyUpdate(next, upd); err != nil {
		return err
	}
	next[store.IDField] = id
	if err := c.checkUnique(id, next); err != nil {
		return errors.Wrap(err, name)
	}
	c.docs[id] = next
	return nil
}

func (m *Store) FindOne(ctx context.Context, name string, criteria store.Criteria) (map[string]interface{}, error) {
	docs, err := m.Find(ctx, name, criteria, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

func (m *Store) Find(ctx context.Context, name string, criteria store.Criteria, opts store.FindOptions) ([]map[string]interface{}, error) {
	m.mu.RLock()
	c, ok := m.collections[name]
	if !ok {
		m.mu.RUnlock()
		return []map[string]interface{}{}, nil
	}
	matched := []map[string]interface{}{}
	for _, id := range c.order {
		if store.Match(c.docs[id], criteria) {
			matched = append(matched, c.docs[id])
		}
	}
	m.mu.RUnlock()

	store.SortDocuments(matched, opts.Sort)
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	out := make([]map[string]interface{}, 0, len(matched))
	for _, d := range matched {
		cp, err := store.Clone(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *Store) EnsureIndex(ctx context.Context, name, field string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.col(name)
	if unique {
		seen := map[store.ID]map[string]interface{}{}
		for id, d := range c.docs {
			for _, other := range seen {
				if clash(d, other, field) {
					return errors.Wrapf(store.ErrDuplicateKey, "%s: cannot build unique index on %s", name, field)
				}
			}
			seen[id] = d
		}
	}
	c.indexes[field] = c.indexes[field] || unique
	return nil
}

// Len returns the number of documents stored in a collection.
func (m *Store) Len(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[name]; ok {
		return len(c.docs)
	}
	return 0
}

func (c *collection) checkUnique(id store.ID, doc map[string]interface{}) error {
	for field, unique := range c.indexes {
		if !unique {
			continue
		}
		for otherID, other := range c.docs {
			if otherID != id && clash(doc, other, field) {
				return errors.Wrapf(store.ErrDuplicateKey, "unique index %s", field)
			}
		}
	}
	return nil
}

func clash(a, b map[string]interface{}, field string) bool {
	va, okA := store.Lookup(a, field)
	vb, okB := store.Lookup(b, field)
	if !okA || !okB || va == nil || vb == nil {
		return false
	}
	return store.Equal(va, vb)
}
