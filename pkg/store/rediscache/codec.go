package rediscache

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/shmookey/coconut/pkg/store"
)

// Cached documents are BSON-encoded so that integers, floats, identifiers
// and references survive the round trip with their types intact.

const (
	idMarker  = "$cid"
	refMarker = "$ref"
	refID     = "$id"
)

func encode(doc map[string]interface{}) ([]byte, error) {
	return bson.Marshal(wrap(doc))
}

func decode(b []byte) (map[string]interface{}, error) {
	var raw bson.M
	if err := bson.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out, _ := unwrap(raw).(map[string]interface{})
	return out, nil
}

func wrap(v interface{}) interface{} {
	switch t := v.(type) {
	case store.ID:
		return bson.D{{Key: idMarker, Value: string(t)}}
	case store.Ref:
		return bson.D{{Key: refMarker, Value: t.Collection}, {Key: refID, Value: string(t.ID)}}
	case map[string]interface{}:
		out := make(bson.M, len(t))
		for k, vv := range t {
			out[k] = wrap(vv)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, vv := range t {
			out[i] = wrap(vv)
		}
		return out
	case int:
		return int64(t)
	}
	return v
}

func unwrap(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return unwrapMap(t)
	case map[string]interface{}:
		return unwrapMap(t)
	case bson.D:
		return unwrapMap(t.Map())
	case bson.A:
		return unwrapList(t)
	case []interface{}:
		return unwrapList(t)
	case int32:
		return int64(t)
	}
	return v
}

func unwrapMap(m map[string]interface{}) interface{} {
	if id, ok := m[idMarker].(string); ok && len(m) == 1 {
		return store.ID(id)
	}
	if coll, ok := m[refMarker].(string); ok && len(m) == 2 {
		if id, ok := m[refID].(string); ok {
			return store.Ref{Collection: coll, ID: store.ID(id)}
		}
	}
	out := make(map[string]interface{}, len(m))
	for k, vv := range m {
		out[k] = unwrap(vv)
	}
	return out
}

func unwrapList(l []interface{}) []interface{} {
	out := make([]interface{}, len(l))
	for i, vv := range l {
		out[i] = unwrap(vv)
	}
	return out
}
