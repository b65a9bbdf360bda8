package odm

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// Import converts a raw value into an Element under s. Containers are
// created committed, so a freshly imported tree reports no changes of its
// own; the parent that receives it decides how to write it.
//
// parent may be nil for free-standing values.
func Import(source interface{}, s *schema.Schema, parent node) (Element, error) {
	source = normalize(source)
	if source == nil {
		return nil, nil
	}
	if s == nil {
		s = schema.Wildcard
	}
	if s.NoTraverse {
		raw, err := rawValue(source)
		if err != nil {
			return nil, err
		}
		cp, err := deepCopy(raw)
		if err != nil {
			return nil, errors.Wrap(err, "copy opaque value")
		}
		return &Opaque{Value: cp}, nil
	}

	kind := s.Kind
	if kind == schema.KindAny {
		var err error
		source, kind, err = runtimeKind(source)
		if err != nil {
			return nil, err
		}
	}
	if kind == schema.KindReference {
		return newLink(source, s, session(parent))
	}

	// Values that are already elements are re-imported from their raw form.
	if e, ok := source.(Element); ok {
		raw, err := rawValue(e)
		if err != nil {
			return nil, err
		}
		source = normalize(raw)
	}

	switch kind {
	case schema.KindString:
		if v, ok := source.(string); ok {
			return String(v), nil
		}
	case schema.KindInt:
		if v, ok := source.(int64); ok {
			return Int(v), nil
		}
	case schema.KindFloat:
		switch v := source.(type) {
		case float64:
			return Float(v), nil
		case int64:
			return Float(float64(v)), nil
		}
	case schema.KindBool:
		if v, ok := source.(bool); ok {
			return Bool(v), nil
		}
	case schema.KindMap:
		if v, ok := source.(map[string]interface{}); ok {
			return importMap(v, s, parent)
		}
	case schema.KindSequence:
		if v, ok := source.([]interface{}); ok {
			return importSequence(v, s, parent)
		}
	}
	return nil, &errdefs.ValidationTypeError{Expected: kind.String(), Got: typeName(source)}
}

// runtimeKind decides the tag of a value imported under a wildcard.
func runtimeKind(source interface{}) (interface{}, schema.Kind, error) {
	switch v := source.(type) {
	case string, String:
		return v, schema.KindString, nil
	case int64, Int:
		return v, schema.KindInt, nil
	case float64, Float:
		return v, schema.KindFloat, nil
	case bool, Bool:
		return v, schema.KindBool, nil
	case map[string]interface{}, *Map:
		return v, schema.KindMap, nil
	case []interface{}, *Sequence:
		return v, schema.KindSequence, nil
	case store.ID, store.Ref, *Link, *Document:
		return v, schema.KindReference, nil
	case *Opaque:
		raw, err := deepCopy(v.Value)
		if err != nil {
			return nil, schema.KindAny, err
		}
		return runtimeKind(normalize(raw))
	}
	return nil, schema.KindAny, &errdefs.ValidationTypeError{Expected: schema.KindAny.String(), Got: typeName(source)}
}

// rawValue strips a scalar or container element back to plain data.
func rawValue(v interface{}) (interface{}, error) {
	switch e := v.(type) {
	case String:
		return string(e), nil
	case Int:
		return int64(e), nil
	case Float:
		return float64(e), nil
	case Bool:
		return bool(e), nil
	case *Opaque:
		return e.Value, nil
	case *Link:
		return e.export(nil), nil
	case *Document:
		return e.Ref()
	case Container:
		return e.Export()
	}
	return v, nil
}

func importMap(source map[string]interface{}, s *schema.Schema, parent node) (*Map, error) {
	m := newMap(s, parent)
	if err := m.fill(source); err != nil {
		return nil, err
	}
	m.Flush()
	return m, nil
}

func importSequence(source []interface{}, s *schema.Schema, parent node) (*Sequence, error) {
	q := newSequence(s, parent)
	for _, v := range source {
		if err := q.Append(v); err != nil {
			return nil, err
		}
	}
	q.Flush()
	return q, nil
}

// fill sets every key of source through Set, dropping unknown keys when the
// schema filters them, then supplies defaults for declared keys that are
// still absent.
func (m *Map) fill(source map[string]interface{}) error {
	keys := make([]string, 0, len(source))
	for k := range source {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	staged := make(map[string]Element, len(keys))
	for _, k := range keys {
		child, ok := m.schema.Field(k)
		if !ok {
			if m.schema.Filter {
				continue
			}
			return &errdefs.ValidationKeyError{Key: k}
		}
		e, err := Import(source[k], child, m)
		if err != nil {
			return errors.Wrapf(err, "field %s", k)
		}
		staged[k] = e
	}
	for _, k := range m.schema.FieldNames() {
		if _, ok := staged[k]; ok {
			continue
		}
		e, err := defaultElement(m.schema.Fields[k], m)
		if err != nil {
			return errors.Wrapf(err, "default for %s", k)
		}
		staged[k] = e
	}
	buf := m.buffer()
	for k, e := range staged {
		buf[k] = e
	}
	return nil
}

func defaultElement(s *schema.Schema, parent node) (Element, error) {
	if s == nil || !s.HasDefault {
		return nil, nil
	}
	v, err := deepCopy(s.Default)
	if err != nil {
		return nil, err
	}
	return Import(v, s, parent)
}
