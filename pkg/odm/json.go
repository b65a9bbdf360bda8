package odm

import (
	gojson "github.com/goccy/go-json"

	"github.com/shmookey/coconut/pkg/store"
)

// MarshalJSON renders an element tree as JSON. References become
// {"collection": ..., "id": ...} objects and identifiers plain strings.
func MarshalJSON(e Element) ([]byte, error) {
	var v interface{}
	var err error
	if d, ok := e.(*Document); ok {
		v, err = d.Record()
	} else {
		v, err = Export(e, nil)
	}
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(JSONValue(v))
}

// JSONValue rewrites raw store values into JSON-friendly shapes.
func JSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case store.ID:
		return string(t)
	case store.Ref:
		return map[string]interface{}{"collection": t.Collection, "id": string(t.ID)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = JSONValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = JSONValue(vv)
		}
		return out
	}
	return v
}

func (m *Map) MarshalJSON() ([]byte, error) { return MarshalJSON(m) }

func (q *Sequence) MarshalJSON() ([]byte, error) { return MarshalJSON(q) }

func (d *Document) MarshalJSON() ([]byte, error) { return MarshalJSON(d) }

func (l *Link) MarshalJSON() ([]byte, error) { return MarshalJSON(l) }
