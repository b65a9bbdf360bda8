// Package odm maps schema-typed, tree-shaped documents onto a store.Store.
//
// Raw values are imported into an Element tree under a schema.Schema,
// mutated through copy-on-write Map and Sequence containers, and written
// back as the minimal set of changed field paths.
package odm

import (
	"fmt"
	"reflect"

	gojson "github.com/goccy/go-json"
	"github.com/mitchellh/copystructure"

	"github.com/shmookey/coconut/pkg/store"
)

// Element is a typed value held in a document tree. A nil Element is null.
//
// The concrete types are String, Int, Float, Bool, *Opaque, *Link, *Map,
// *Sequence and *Document.
type Element interface {
	isElement()
}

type (
	String string
	Int    int64
	Float  float64
	Bool   bool
)

func (String) isElement() {}
func (Int) isElement()    {}
func (Float) isElement()  {}
func (Bool) isElement()   {}

// Opaque holds a raw value stored without recursive typing.
type Opaque struct {
	Value interface{}
}

func (*Opaque) isElement() {}

// Container is implemented by *Map and *Sequence (and *Document through its
// embedded *Map).
type Container interface {
	Element
	Flush()
	Changes() (sets, unsets Delta, err error)
	Export() (interface{}, error)
	Document() *Document
}

// node is anything that can sit above a container in a tree.
type node interface {
	Document() *Document
}

func session(parent node) *Session {
	if parent == nil {
		return nil
	}
	d := parent.Document()
	if d == nil || d.typ == nil {
		return nil
	}
	return d.typ.sess
}

// scalarEqual compares two leaf elements for change detection.
func scalarEqual(a, b Element) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case String, Int, Float, Bool:
		return a == b
	case *Link:
		y, ok := b.(*Link)
		return ok && x.equal(y)
	}
	return false
}

// normalize folds the many Go shapes a caller may hand in onto the handful
// of raw shapes import understands.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, map[string]interface{}, []interface{},
		store.ID, store.Ref, Element:
		return v
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return string(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	}
	return v
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string, String:
		return "string"
	case int64, Int:
		return "integer"
	case float64, Float:
		return "float"
	case bool, Bool:
		return "boolean"
	case map[string]interface{}, *Map:
		return "map"
	case []interface{}, *Sequence:
		return "sequence"
	case store.ID, store.Ref, *Link, *Document:
		return "reference"
	}
	return fmt.Sprintf("%T", v)
}

func deepCopy(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return copystructure.Copy(v)
}
