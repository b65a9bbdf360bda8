package schema

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
)

// Validate checks that every node of s is well formed. All problems are
// collected; the result is nil or a *multierror.Error of typed schema errors.
func Validate(s *Schema) error {
	var result *multierror.Error
	validate(s, "", &result)
	return result.ErrorOrNil()
}

func validate(s *Schema, path string, result **multierror.Error) {
	if s == nil {
		return
	}
	fail := func(err error) {
		if path != "" {
			err = errors.Wrapf(err, "field %s", path)
		}
		*result = multierror.Append(*result, err)
	}
	tag := s.Kind.String()

	switch s.Kind {
	case KindAny, KindString, KindInt, KindFloat, KindBool, KindReference, KindMap, KindSequence:
	default:
		fail(&errdefs.SchemaUnknownType{Decl: s})
		return
	}

	if s.Kind != KindReference && s.Target != "" {
		fail(&errdefs.SchemaUnknownKey{Key: "ref", Tag: tag})
	}
	if s.Kind != KindMap && s.Kind != KindAny {
		if s.Filter {
			fail(&errdefs.SchemaUnknownKey{Key: "filter", Tag: tag})
		}
		if s.Fields != nil {
			fail(&errdefs.SchemaUnknownKey{Key: "dict", Tag: tag})
		}
	}
	if s.Kind != KindSequence && s.Kind != KindAny {
		if s.Range != Exact {
			fail(&errdefs.SchemaUnknownKey{Key: "range", Tag: tag})
		}
		if s.Items != nil {
			fail(&errdefs.SchemaUnknownKey{Key: "list", Tag: tag})
		}
	}
	if s.NoTraverse && s.Kind != KindMap && s.Kind != KindSequence {
		fail(&errdefs.SchemaUnknownKey{Key: "traverse", Tag: tag})
	}

	switch s.Kind {
	case KindMap:
		for _, name := range s.FieldNames() {
			if name == "" {
				fail(&errdefs.SchemaTypeError{Detail: "map field with empty name"})
				continue
			}
			validate(s.Fields[name], join(path, name), result)
		}
	case KindSequence:
		switch s.Range {
		case Exact, MatchAny:
		case All:
			if len(s.Items) > 1 {
				fail(&errdefs.SchemaTypeError{Detail: fmt.Sprintf("range all takes one item schema, got %d", len(s.Items))})
			}
		default:
			fail(&errdefs.ValidationListError{Index: -1, Reason: fmt.Sprintf("unknown range policy %d", s.Range)})
		}
		for i, it := range s.Items {
			validate(it, join(path, fmt.Sprint(i)), result)
		}
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
