// Package mongostore backs store.Store with a MongoDB database. Each odm
// collection maps onto a MongoDB collection of the same name.
package mongostore

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shmookey/coconut/pkg/store"
)

type Store struct {
	db *mongo.Database
}

var _ store.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (m *Store) Insert(ctx context.Context, collection string, fields map[string]interface{}) (store.ID, error) {
	doc, _ := toBSON(fields).(bson.M)
	if doc == nil {
		doc = bson.M{}
	}
	res, err := m.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", translate(err, collection)
	}
	id, _ := fromBSON(res.InsertedID).(store.ID)
	if id == "" {
		if s, ok := res.InsertedID.(string); ok {
			id = store.ID(s)
		}
	}
	return id, nil
}

func (m *Store) Update(ctx context.Context, collection string, id store.ID, u store.Update) error {
	change := bson.M{}
	if len(u.Set) > 0 {
		change["$set"] = toBSON(u.Set)
	}
	if len(u.Unset) > 0 {
		unset := bson.M{}
		for _, p := range u.Unset {
			unset[p] = ""
		}
		change["$unset"] = unset
	}
	if len(change) == 0 {
		return nil
	}
	res, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{store.IDField: encodeID(id)}, change)
	if err != nil {
		return translate(err, collection)
	}
	if res.MatchedCount == 0 {
		return pkgerrors.Wrapf(store.ErrNotFound, "%s %s", collection, id)
	}
	return nil
}

func (m *Store) FindOne(ctx context.Context, collection string, criteria store.Criteria) (map[string]interface{}, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, toBSON(criteria)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return decodeDocument(raw), nil
}

func (m *Store) Find(ctx context.Context, collection string, criteria store.Criteria, opts store.FindOptions) ([]map[string]interface{}, error) {
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, f := range opts.Sort {
			dir := 1
			if f.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: f.Field, Value: dir})
		}
		findOpts.SetSort(sort)
	}
	cur, err := m.db.Collection(collection).Find(ctx, toBSON(criteria), findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []map[string]interface{}{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, decodeDocument(raw))
	}
	return out, cur.Err()
}

// EnsureIndex creates an ascending single-field index. Unique indexes only
// cover documents where the field holds a value, so unset fields never
// collide with each other.
func (m *Store) EnsureIndex(ctx context.Context, collection, field string, unique bool) error {
	idxOpts := options.Index()
	if unique {
		idxOpts.SetUnique(true).SetPartialFilterExpression(bson.M{
			field: bson.M{"$type": bson.A{"string", "number", "bool", "objectId", "object"}},
		})
	}
	model := mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: idxOpts}
	if _, err := m.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return translate(err, collection)
	}
	return nil
}

func translate(err error, collection string) error {
	if mongo.IsDuplicateKeyError(err) {
		return pkgerrors.Wrapf(store.ErrDuplicateKey, "%s: %v", collection, err)
	}
	return err
}
