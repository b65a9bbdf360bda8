package mongostore

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shmookey/coconut/pkg/store"
)

// toBSON maps raw store values onto their BSON encodings: identifiers that
// look like ObjectIDs become ObjectIDs and references become DBRef-shaped
// subdocuments.
func toBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case store.ID:
		return encodeID(t)
	case store.Ref:
		return bson.D{{Key: "$ref", Value: t.Collection}, {Key: "$id", Value: encodeID(t.ID)}}
	case store.Criteria:
		return toBSON(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(bson.M, len(t))
		for k, vv := range t {
			out[k] = toBSON(vv)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, vv := range t {
			out[i] = toBSON(vv)
		}
		return out
	case int:
		return int64(t)
	}
	return v
}

func encodeID(id store.ID) interface{} {
	if oid, err := primitive.ObjectIDFromHex(string(id)); err == nil {
		return oid
	}
	return string(id)
}

// fromBSON is the inverse of toBSON for decoded documents.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return store.ID(t.Hex())
	case primitive.M:
		return fromMap(map[string]interface{}(t))
	case map[string]interface{}:
		return fromMap(t)
	case primitive.D:
		return fromMap(t.Map())
	case primitive.A:
		return fromSlice([]interface{}(t))
	case []interface{}:
		return fromSlice(t)
	case int32:
		return int64(t)
	case primitive.DateTime:
		return float64(t) / 1000
	}
	return v
}

func fromMap(m map[string]interface{}) interface{} {
	if len(m) == 2 {
		coll, okRef := m["$ref"].(string)
		rawID, okID := m["$id"]
		if okRef && okID {
			ref := store.Ref{Collection: coll}
			switch id := rawID.(type) {
			case primitive.ObjectID:
				ref.ID = store.ID(id.Hex())
			case string:
				ref.ID = store.ID(id)
			}
			return ref
		}
	}
	out := make(map[string]interface{}, len(m))
	for k, vv := range m {
		out[k] = fromBSON(vv)
	}
	return out
}

func fromSlice(l []interface{}) []interface{} {
	out := make([]interface{}, len(l))
	for i, vv := range l {
		out[i] = fromBSON(vv)
	}
	return out
}

func decodeDocument(m bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = fromBSON(v)
	}
	return out
}
