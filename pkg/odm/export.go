package odm

import (
	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
)

// Export renders e as the raw value the store keeps for it under s.
// References become a bare identifier when s names a concrete type and a
// store.Ref otherwise.
func Export(e Element, s *schema.Schema) (interface{}, error) {
	if e == nil {
		return nil, nil
	}
	if s == nil {
		s = schema.Wildcard
	}
	if o, ok := e.(*Opaque); ok {
		return deepCopy(o.Value)
	}
	if !schema.IsAny(s) && !s.NoTraverse && !compatible(e, s.Kind) {
		return nil, &errdefs.ValidationTypeError{Expected: s.Kind.String(), Got: typeName(e)}
	}
	switch v := e.(type) {
	case String:
		return string(v), nil
	case Int:
		return int64(v), nil
	case Float:
		return float64(v), nil
	case Bool:
		return bool(v), nil
	case *Link:
		return v.export(s), nil
	case *Document:
		l, err := newLink(v, s, v.session())
		if err != nil {
			return nil, err
		}
		return l.export(s), nil
	case Container:
		return v.Export()
	}
	return nil, &errdefs.ValidationTypeError{Expected: s.Kind.String(), Got: typeName(e)}
}

func compatible(e Element, k schema.Kind) bool {
	switch e.(type) {
	case String:
		return k == schema.KindString
	case Int:
		return k == schema.KindInt || k == schema.KindFloat
	case Float:
		return k == schema.KindFloat
	case Bool:
		return k == schema.KindBool
	case *Link, *Document:
		return k == schema.KindReference
	case *Map:
		return k == schema.KindMap
	case *Sequence:
		return k == schema.KindSequence
	}
	return false
}
