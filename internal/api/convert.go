package api

import (
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// decodeBody reads a JSON object, keeping integer literals exact.
func decodeBody(r io.Reader) (map[string]interface{}, error) {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, &errdefs.ValidationTypeError{Expected: "JSON object", Got: err.Error()}
	}
	if body == nil {
		return nil, &errdefs.ValidationTypeError{Expected: "JSON object", Got: "null"}
	}
	for _, k := range []string{store.IDField, store.ActiveField} {
		if _, ok := body[k]; ok {
			return nil, &errdefs.ValidationKeyError{Key: k}
		}
	}
	return body, nil
}

// fromJSON turns decoded JSON into import input for s. Numbers become
// int64 or float64 and references, given as an id string or a
// {"collection","id"} object, become store.ID or store.Ref. Under a
// wildcard only the object form is a reference.
func fromJSON(v interface{}, s *schema.Schema) (interface{}, error) {
	switch t := v.(type) {
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		return f, errors.Wrapf(err, "number %s", t)
	case string:
		if refAllowed(s) {
			return store.ID(t), nil
		}
		return t, nil
	case map[string]interface{}:
		if refAllowed(s) {
			if ref, ok := refObject(t); ok {
				return ref, nil
			}
		}
		if schema.IsAny(s) {
			if ref, ok := typedRef(t); ok {
				return ref, nil
			}
		}
		var fieldSchema func(string) *schema.Schema
		if schema.GetType(s) == schema.KindMap && s.Traversed() {
			fieldSchema = func(k string) *schema.Schema {
				f, _ := s.Field(k)
				return f
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			var fs *schema.Schema
			if fieldSchema != nil {
				fs = fieldSchema(k)
			}
			c, err := fromJSON(vv, fs)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			var is *schema.Schema
			if schema.GetType(s) == schema.KindSequence && s.Traversed() {
				is = itemHint(i, s)
			}
			c, err := fromJSON(vv, is)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}

func refAllowed(s *schema.Schema) bool {
	return s != nil && s.Kind == schema.KindReference
}

// itemHint picks the schema used to interpret position i. For match-any
// lists a reference candidate wins so ids are not read as strings.
func itemHint(i int, s *schema.Schema) *schema.Schema {
	cands, err := schema.ItemCandidates(i, s)
	if err != nil || len(cands) == 0 {
		return nil
	}
	for _, c := range cands {
		if refAllowed(c) {
			return c
		}
	}
	return cands[0]
}

func refObject(m map[string]interface{}) (interface{}, bool) {
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return nil, false
	}
	coll, _ := m["collection"].(string)
	if coll == "" {
		return store.ID(id), true
	}
	return store.Ref{Collection: coll, ID: store.ID(id)}, true
}

// typedRef recognises a value that is exactly {"collection","id"} as a
// reference, which is how references render under a wildcard schema.
func typedRef(m map[string]interface{}) (store.Ref, bool) {
	if len(m) != 2 {
		return store.Ref{}, false
	}
	coll, _ := m["collection"].(string)
	id, _ := m["id"].(string)
	if coll == "" || id == "" {
		return store.Ref{}, false
	}
	return store.Ref{Collection: coll, ID: store.ID(id)}, true
}

// bodyFor converts a decoded request body against a document schema.
func bodyFor(body map[string]interface{}, s *schema.Schema) (map[string]interface{}, error) {
	v, err := fromJSON(body, s)
	if err != nil {
		return nil, err
	}
	return v.(map[string]interface{}), nil
}
