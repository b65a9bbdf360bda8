package odm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// Link is a typed reference to a document, resolved lazily.
type Link struct {
	target   store.ID
	typeName string
	doc      *Document
	sess     *Session
}

func (*Link) isElement() {}

// newLink builds a link from any accepted reference form: an identifier,
// a saved document, another link, a store.Ref or a {"collection","id"} map.
// The declared target type of s and the type observed on the value must
// agree; a wildcard declaration adopts the observed type.
func newLink(source interface{}, s *schema.Schema, sess *Session) (*Link, error) {
	l := &Link{sess: sess}
	var dynamic string
	switch v := source.(type) {
	case store.ID:
		l.target = v
	case string:
		l.target = store.ID(v)
	case String:
		l.target = store.ID(v)
	case *Document:
		if v.id == "" {
			return nil, errdefs.ErrUnsavedTarget
		}
		l.target = v.id
		l.doc = v
		if v.typ != nil {
			dynamic = v.typ.name
			if l.sess == nil {
				l.sess = v.typ.sess
			}
		}
	case *Link:
		l.target = v.target
		l.doc = v.doc
		dynamic = v.typeName
		if l.sess == nil {
			l.sess = v.sess
		}
	case store.Ref:
		l.target = v.ID
		dynamic = sess.typeNameFor(v.Collection)
	case map[string]interface{}:
		coll, okC := v["collection"].(string)
		id, okI := v["id"].(string)
		if !okC || !okI || len(v) != 2 {
			return nil, &errdefs.ValidationTypeError{Expected: schema.KindReference.String(), Got: "map"}
		}
		l.target = store.ID(id)
		dynamic = sess.typeNameFor(coll)
	default:
		return nil, &errdefs.ValidationTypeError{Expected: schema.KindReference.String(), Got: typeName(source)}
	}

	declared := ""
	if s != nil && s.Kind == schema.KindReference {
		declared = s.Target
	}
	switch {
	case dynamic != "" && declared != "" && dynamic != declared:
		return nil, &errdefs.ValidationTypeError{Expected: declared, Got: dynamic}
	case dynamic != "":
		l.typeName = dynamic
	case declared != "":
		l.typeName = declared
	default:
		return nil, errors.Wrapf(errdefs.ErrUntypedReference, "target %s", l.target)
	}
	return l, nil
}

// NewLink builds a free-standing link; s may be nil for a wildcard reference.
func NewLink(target interface{}, s *schema.Schema, sess *Session) (*Link, error) {
	return newLink(normalize(target), s, sess)
}

func (l *Link) Target() store.ID { return l.target }

func (l *Link) TypeName() string { return l.typeName }

// Resolved returns the cached document, if the link has been dereferenced
// or was built from a document.
func (l *Link) Resolved() *Document { return l.doc }

// Dereference fetches the target once and caches it.
func (l *Link) Dereference(ctx context.Context) (*Document, error) {
	if l.doc != nil {
		return l.doc, nil
	}
	if l.typeName == "" {
		return nil, errdefs.ErrUntypedReference
	}
	if l.sess == nil {
		return nil, errors.Wrapf(errdefs.ErrDetached, "dereference %s %s", l.typeName, l.target)
	}
	t, ok := l.sess.Type(l.typeName)
	if !ok {
		return nil, &errdefs.SchemaTypeError{Detail: "unknown document type " + l.typeName}
	}
	l.sess.log.Debug().Str("type", l.typeName).Str("id", string(l.target)).Msg("dereference")
	doc, err := t.Get(ctx, l.target)
	if err != nil {
		return nil, err
	}
	l.doc = doc
	return doc, nil
}

func (l *Link) collection() string {
	if t, ok := l.sess.Type(l.typeName); ok {
		return t.collection
	}
	return l.typeName
}

// export emits a store.Ref under a wildcard or untargeted reference schema
// and the bare identifier when the schema pins the type.
func (l *Link) export(s *schema.Schema) interface{} {
	if schema.IsAny(s) || s.Target == "" {
		return store.Ref{Collection: l.collection(), ID: l.target}
	}
	return l.target
}

func (l *Link) equal(o *Link) bool {
	return o != nil && l.target == o.target && l.typeName == o.typeName
}
