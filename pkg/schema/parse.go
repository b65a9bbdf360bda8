package schema

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/shmookey/coconut/pkg/errdefs"
)

// Declarative tags. A declaration mapping carries exactly one of them.
const (
	TagType = "type"
	TagRef  = "ref"
	TagDict = "dict"
	TagList = "list"

	anyKeyword = "any"
)

var tags = []string{TagType, TagRef, TagDict, TagList}

// Modifiers accepted per tag, on top of default, index and unique.
var modifiers = map[string]map[string]bool{
	TagType: {},
	TagRef:  {},
	TagDict: {"traverse": true, "filter": true},
	TagList: {"traverse": true, "range": true},
}

// Parse builds a Schema from its declarative form:
//
//	{type: string}                       scalar (string, int, float, bool, any)
//	{ref: Person} / {ref: any}           reference
//	{dict: {name: {...}}} / {dict: any}  map
//	{list: [{...}], range: all}          sequence
//	any                                  wildcard
//
// Modifiers default, index and unique apply to every tag; traverse to dict and
// list; filter to dict; range (all, any) to list.
func Parse(decl interface{}) (*Schema, error) {
	s, err := parse(decl)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseDocument parses a document field table, the body of an implicit dict.
func ParseDocument(fields map[string]interface{}) (*Schema, error) {
	return Parse(map[string]interface{}{TagDict: fields})
}

func parse(decl interface{}) (*Schema, error) {
	if decl == nil {
		return nil, &errdefs.SchemaUnknownType{Decl: decl}
	}
	if str, ok := decl.(string); ok {
		if str == anyKeyword {
			return Any(), nil
		}
		return nil, &errdefs.SchemaUnknownType{Decl: decl}
	}
	m, ok := normalize(decl).(map[string]interface{})
	if !ok {
		return nil, &errdefs.SchemaUnknownType{Decl: decl}
	}

	var tag string
	for _, t := range tags {
		if _, ok := m[t]; !ok {
			continue
		}
		if tag != "" {
			return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("declaration has both %q and %q", tag, t)}
		}
		tag = t
	}
	if tag == "" {
		return nil, &errdefs.SchemaUnknownType{Decl: decl}
	}

	var s *Schema
	var err error
	switch tag {
	case TagType:
		s, err = parseScalar(m[TagType])
	case TagRef:
		s, err = parseRef(m[TagRef])
	case TagDict:
		s, err = parseDict(m[TagDict])
	case TagList:
		s, err = parseList(m[TagList])
	}
	if err != nil {
		return nil, err
	}
	if err := applyModifiers(s, tag, m); err != nil {
		return nil, err
	}
	return s, nil
}

func parseScalar(v interface{}) (*Schema, error) {
	name, ok := v.(string)
	if !ok {
		return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("type must be a name, not %T", v)}
	}
	switch name {
	case "string", "str":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case anyKeyword:
		return Any(), nil
	}
	return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("unsupported scalar type %q", name)}
}

func parseRef(v interface{}) (*Schema, error) {
	name, ok := v.(string)
	if !ok || name == "" {
		return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("reference target must be a type name or any, not %v", v)}
	}
	if name == anyKeyword {
		return AnyRef(), nil
	}
	return Ref(name), nil
}

func parseDict(v interface{}) (*Schema, error) {
	if v == anyKeyword {
		return AnyMap(), nil
	}
	m, ok := normalize(v).(map[string]interface{})
	if !ok {
		return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("dict must map keys to schemas, not %T", v)}
	}
	var result *multierror.Error
	fields := make(map[string]*Schema, len(m))
	for _, key := range sortedKeys(m) {
		f, err := parse(m[key])
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "field %s", key))
			continue
		}
		fields[key] = f
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return Map(fields), nil
}

func parseList(v interface{}) (*Schema, error) {
	if v == anyKeyword {
		return &Schema{Kind: KindSequence}, nil
	}
	l, ok := v.([]interface{})
	if !ok {
		return nil, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("list must hold item schemas, not %T", v)}
	}
	var result *multierror.Error
	items := make([]*Schema, 0, len(l))
	for i, it := range l {
		s, err := parse(it)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "item %d", i))
			continue
		}
		items = append(items, s)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return Seq(items...), nil
}

func applyModifiers(s *Schema, tag string, m map[string]interface{}) error {
	for _, key := range sortedKeys(m) {
		val := m[key]
		if key == tag {
			continue
		}
		switch {
		case key == "default":
			s.Default = val
			s.HasDefault = true
		case key == "index":
			b, err := flag(key, val)
			if err != nil {
				return err
			}
			s.Index = b
		case key == "unique":
			b, err := flag(key, val)
			if err != nil {
				return err
			}
			s.Unique = b
			s.Index = s.Index || b
		case modifiers[tag][key] && key == "traverse":
			b, err := flag(key, val)
			if err != nil {
				return err
			}
			s.NoTraverse = !b
		case modifiers[tag][key] && key == "filter":
			b, err := flag(key, val)
			if err != nil {
				return err
			}
			s.Filter = b
		case modifiers[tag][key] && key == "range":
			switch val {
			case "all":
				s.Range = All
			case anyKeyword:
				s.Range = MatchAny
			default:
				return &errdefs.ValidationListError{Index: -1, Reason: fmt.Sprintf("unknown range policy %v", val)}
			}
		default:
			return &errdefs.SchemaUnknownKey{Key: key, Tag: tag}
		}
	}
	return nil
}

func flag(key string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &errdefs.SchemaTypeError{Detail: fmt.Sprintf("%s must be a boolean, not %T", key, v)}
	}
	return b, nil
}

// LoadYAML reads a table of document schemas:
//
//	types:
//	  Person:
//	    name:    {type: string, index: true}
//	    referer: {ref: Person}
func LoadYAML(data []byte) (map[string]*Schema, error) {
	var doc struct {
		Types map[string]map[string]interface{} `yaml:"types"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode schema yaml")
	}
	names := make([]string, 0, len(doc.Types))
	for name := range doc.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	var result *multierror.Error
	out := make(map[string]*Schema, len(names))
	for _, name := range names {
		s, err := ParseDocument(doc.Types[name])
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "type %s", name))
			continue
		}
		out[name] = s
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize turns YAML-decoded map[interface{}]interface{} nodes into
// string-keyed maps, recursively.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
