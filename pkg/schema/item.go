package schema

import (
	"fmt"

	"github.com/shmookey/coconut/pkg/errdefs"
)

// ItemSchema resolves the schema that governs position index of a sequence.
//
// A declared positional schema wins. Past the declared list, a homogeneous
// (range all) sequence reuses its first item schema; a wildcard element list
// is only valid when homogeneous. Match-any sequences resolve per value, see
// ItemCandidates.
func ItemSchema(index int, s *Schema) (*Schema, error) {
	if IsAny(s) {
		return Wildcard, nil
	}
	if s.Kind != KindSequence {
		return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("%s schema has no list items", s.Kind)}
	}
	if index < 0 {
		return nil, &errdefs.ValidationListError{Index: index, Reason: "negative index"}
	}
	if s.Items == nil {
		if s.Range == All || s.Range == MatchAny {
			return Wildcard, nil
		}
		return nil, &errdefs.ValidationListError{Index: index, Reason: "wildcard item list without range all"}
	}
	switch s.Range {
	case Exact:
		if index < len(s.Items) {
			return nonNil(s.Items[index]), nil
		}
		return nil, &errdefs.ValidationListError{Index: index, Reason: fmt.Sprintf("list declares %d positions", len(s.Items))}
	case All:
		if index < len(s.Items) {
			return nonNil(s.Items[index]), nil
		}
		if len(s.Items) == 0 {
			return nil, &errdefs.ValidationListError{Index: index, Reason: "range all without an item schema"}
		}
		return nonNil(s.Items[0]), nil
	case MatchAny:
		return nil, &errdefs.ValidationListError{Index: index, Reason: "match-any list resolves per value"}
	}
	return nil, &errdefs.ValidationListError{Index: index, Reason: fmt.Sprintf("unknown range policy %d", s.Range)}
}

// ItemCandidates lists the schemas to try, in order, for position index.
// Only match-any sequences yield more than one.
func ItemCandidates(index int, s *Schema) ([]*Schema, error) {
	if !IsAny(s) && s.Kind == KindSequence && s.Range == MatchAny && s.Items != nil {
		if len(s.Items) == 0 {
			return nil, &errdefs.ValidationListError{Index: index, Reason: "match-any list without item schemas"}
		}
		out := make([]*Schema, len(s.Items))
		for i, it := range s.Items {
			out[i] = nonNil(it)
		}
		return out, nil
	}
	one, err := ItemSchema(index, s)
	if err != nil {
		return nil, err
	}
	return []*Schema{one}, nil
}

func nonNil(s *Schema) *Schema {
	if s == nil {
		return Wildcard
	}
	return s
}
