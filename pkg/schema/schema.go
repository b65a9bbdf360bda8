// Package schema describes the shape of tree-shaped documents: scalar fields,
// typed references to other documents, keyed maps and ordered lists. A Schema
// carries no runtime state; the odm package interprets it when importing,
// exporting and diffing values.
package schema

import "sort"

// Kind is the single tag every schema resolves to.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindReference
	KindMap
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindReference:
		return "reference"
	case KindMap:
		return "map"
	case KindSequence:
		return "sequence"
	}
	return "unknown"
}

// Scalar reports whether k is one of the four scalar kinds.
func (k Kind) Scalar() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool:
		return true
	}
	return false
}

// Range selects how list positions map onto item schemas.
type Range int

const (
	// Exact gives every position its own declared schema.
	Exact Range = iota
	// All applies the first item schema to every position past the declared list.
	All
	// MatchAny tries each item schema in order and keeps the first that accepts the value.
	MatchAny
)

func (r Range) String() string {
	switch r {
	case Exact:
		return "exact"
	case All:
		return "all"
	case MatchAny:
		return "any"
	}
	return "unknown"
}

// Schema is a node of a type descriptor tree.
type Schema struct {
	Kind Kind

	// Target names the referenced document type; empty accepts any type.
	Target string

	// Fields holds the child schemas of a map; nil accepts any key.
	Fields map[string]*Schema
	// Filter drops unknown keys on import instead of rejecting them.
	Filter bool

	// Items holds the positional schemas of a sequence; nil accepts anything.
	Items []*Schema
	Range Range

	Default    interface{}
	HasDefault bool
	Index      bool
	Unique     bool
	// NoTraverse stores the value opaquely, without recursive typing.
	NoTraverse bool
}

// Wildcard accepts any value. Treat it as read-only; modifiers return copies.
var Wildcard = &Schema{Kind: KindAny}

// IsAny reports whether s accepts anything. A nil schema is a wildcard.
func IsAny(s *Schema) bool { return s == nil || s.Kind == KindAny }

// GetType resolves the tag of s.
func GetType(s *Schema) Kind {
	if s == nil {
		return KindAny
	}
	return s.Kind
}

func Any() *Schema { return &Schema{Kind: KindAny} }

func String() *Schema { return &Schema{Kind: KindString} }

func Int() *Schema { return &Schema{Kind: KindInt} }

func Float() *Schema { return &Schema{Kind: KindFloat} }

func Bool() *Schema { return &Schema{Kind: KindBool} }

// Ref declares a reference to documents of the named type.
func Ref(target string) *Schema { return &Schema{Kind: KindReference, Target: target} }

// AnyRef declares a reference whose type is taken from the referenced value.
func AnyRef() *Schema { return &Schema{Kind: KindReference} }

// Map declares a map with a fixed key set.
func Map(fields map[string]*Schema) *Schema {
	if fields == nil {
		fields = map[string]*Schema{}
	}
	return &Schema{Kind: KindMap, Fields: fields}
}

// AnyMap declares a map accepting any key and value.
func AnyMap() *Schema { return &Schema{Kind: KindMap} }

// Seq declares a list whose positions follow items one to one.
func Seq(items ...*Schema) *Schema {
	if items == nil {
		items = []*Schema{}
	}
	return &Schema{Kind: KindSequence, Items: items}
}

// SeqOf declares a homogeneous list of item.
func SeqOf(item *Schema) *Schema {
	return &Schema{Kind: KindSequence, Items: []*Schema{item}, Range: All}
}

// AnySeq declares a list of anything.
func AnySeq() *Schema { return &Schema{Kind: KindSequence, Range: All} }

func (s *Schema) clone() *Schema {
	c := *s
	return &c
}

func (s *Schema) WithDefault(v interface{}) *Schema {
	c := s.clone()
	c.Default = v
	c.HasDefault = true
	return c
}

func (s *Schema) Indexed() *Schema {
	c := s.clone()
	c.Index = true
	return c
}

func (s *Schema) UniqueIndex() *Schema {
	c := s.clone()
	c.Index = true
	c.Unique = true
	return c
}

// Opaque marks the value as stored without recursive typing.
func (s *Schema) Opaque() *Schema {
	c := s.clone()
	c.NoTraverse = true
	return c
}

func (s *Schema) Filtered() *Schema {
	c := s.clone()
	c.Filter = true
	return c
}

func (s *Schema) MatchAny() *Schema {
	c := s.clone()
	c.Range = MatchAny
	return c
}

// Traversed reports whether values under s are typed recursively.
func (s *Schema) Traversed() bool { return s == nil || !s.NoTraverse }

// Field resolves the child schema for key. A wildcard map yields Wildcard.
func (s *Schema) Field(key string) (*Schema, bool) {
	if IsAny(s) || s.Kind == KindMap && s.Fields == nil {
		return Wildcard, true
	}
	if s.Kind != KindMap {
		return nil, false
	}
	f, ok := s.Fields[key]
	if ok && f == nil {
		return Wildcard, true
	}
	return f, ok
}

// FieldNames returns the declared keys of a map schema in sorted order.
func (s *Schema) FieldNames() []string {
	if s == nil || s.Kind != KindMap {
		return nil
	}
	out := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IndexSpec is a field the store should index.
type IndexSpec struct {
	Field  string `json:"field"`
	Unique bool   `json:"unique"`
}

// IndexedFields lists the top-level fields of a map schema marked index or unique.
func IndexedFields(s *Schema) []IndexSpec {
	var out []IndexSpec
	for _, name := range s.FieldNames() {
		f := s.Fields[name]
		if f == nil {
			continue
		}
		if f.Index || f.Unique {
			out = append(out, IndexSpec{Field: name, Unique: f.Unique})
		}
	}
	return out
}
