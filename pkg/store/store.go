// Package store defines the boundary between the odm layer and a backing
// document store. A driver only has to insert raw documents, apply
// partial "set field"/"remove field" updates and answer identifier or
// criteria lookups; everything else happens above this line.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// Reserved record fields.
const (
	IDField     = "_id"
	ActiveField = "__active__"
)

var (
	ErrNotFound     = errors.New("store: no matching document")
	ErrDuplicateKey = errors.New("store: duplicate key")
)

// ID is a store-assigned document identifier.
type ID string

func (id ID) String() string { return string(id) }

// Ref is a structural reference: a collection name plus an identifier.
type Ref struct {
	Collection string
	ID         ID
}

// Update is a partial write. Paths are dotted, with list positions as
// numeric segments ("tags.2", "address.city").
type Update struct {
	Set   map[string]interface{}
	Unset []string
}

// Empty reports whether the update carries no operations.
func (u Update) Empty() bool { return len(u.Set) == 0 && len(u.Unset) == 0 }

// Criteria selects documents. Keys are dotted paths; a value is either the
// expected value or an operator map ($lt, $lte, $gt, $gte, $ne, $exists, $in).
type Criteria map[string]interface{}

// With returns a copy of c with key set to value.
func (c Criteria) With(key string, value interface{}) Criteria {
	out := make(Criteria, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

type SortField struct {
	Field string
	Desc  bool
}

type FindOptions struct {
	Limit int64
	Sort  []SortField
}

// Store is implemented by every backing driver.
type Store interface {
	Insert(ctx context.Context, collection string, fields map[string]interface{}) (ID, error)
	Update(ctx context.Context, collection string, id ID, u Update) error
	FindOne(ctx context.Context, collection string, criteria Criteria) (map[string]interface{}, error)
	Find(ctx context.Context, collection string, criteria Criteria, opts FindOptions) ([]map[string]interface{}, error)
	EnsureIndex(ctx context.Context, collection, field string, unique bool) error
}
