package odm

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
)

// Map is a copy-on-write keyed container. Reads see the pending buffer when
// one exists and the committed state otherwise; the first write after a
// flush copies the committed state into a new buffer.
type Map struct {
	schema    *schema.Schema
	parent    node
	root      *Document
	committed map[string]Element
	pending   map[string]Element
}

var _ Container = (*Map)(nil)

func newMap(s *schema.Schema, parent node) *Map {
	if s == nil {
		s = schema.Wildcard
	}
	return &Map{schema: s, parent: parent, committed: map[string]Element{}}
}

func (*Map) isElement() {}

func (m *Map) Schema() *schema.Schema { return m.schema }

// Document walks up to the owning document, or returns nil for a detached tree.
func (m *Map) Document() *Document {
	if m.root != nil {
		return m.root
	}
	if m.parent == nil {
		return nil
	}
	return m.parent.Document()
}

func (m *Map) current() map[string]Element {
	if m.pending != nil {
		return m.pending
	}
	return m.committed
}

func (m *Map) buffer() map[string]Element {
	if m.pending == nil {
		m.pending = make(map[string]Element, len(m.committed))
		for k, v := range m.committed {
			m.pending[k] = v
		}
	}
	return m.pending
}

// Dirty reports whether the map holds unflushed writes.
func (m *Map) Dirty() bool { return m.pending != nil }

// Get returns the element under key. Containers are live: mutating them
// changes this map's tree.
func (m *Map) Get(key string) Element {
	return m.current()[key]
}

func (m *Map) Has(key string) bool {
	_, ok := m.current()[key]
	return ok
}

func (m *Map) Keys() []string {
	cur := m.current()
	out := make([]string, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Map) Len() int { return len(m.current()) }

func (m *Map) child(key string) (*schema.Schema, error) {
	s, ok := m.schema.Field(key)
	if !ok {
		return nil, &errdefs.ValidationKeyError{Key: key}
	}
	return s, nil
}

// Set imports value under the schema declared for key and buffers it.
func (m *Map) Set(key string, value interface{}) error {
	s, err := m.child(key)
	if err != nil {
		return err
	}
	e, err := Import(value, s, m)
	if err != nil {
		return errors.Wrapf(err, "field %s", key)
	}
	m.buffer()[key] = e
	return nil
}

// Update sets every key of values. Nothing is written unless every value
// imports cleanly; keys missing from values are left alone.
func (m *Map) Update(values map[string]interface{}) error {
	staged := make(map[string]Element, len(values))
	for key, value := range values {
		s, err := m.child(key)
		if err != nil {
			return err
		}
		e, err := Import(value, s, m)
		if err != nil {
			return errors.Wrapf(err, "field %s", key)
		}
		staged[key] = e
	}
	buf := m.buffer()
	for k, e := range staged {
		buf[k] = e
	}
	return nil
}

// Delete removes key; the next save unsets it in the store.
func (m *Map) Delete(key string) {
	if !m.Has(key) {
		return
	}
	delete(m.buffer(), key)
}

// Flush commits the buffer, then flushes every child container.
func (m *Map) Flush() {
	if m.pending != nil {
		m.committed = m.pending
		m.pending = nil
	}
	for _, e := range m.committed {
		if c, ok := e.(Container); ok {
			c.Flush()
		}
	}
}

// Export renders the current state as raw data.
func (m *Map) Export() (interface{}, error) {
	cur := m.current()
	out := make(map[string]interface{}, len(cur))
	for k, e := range cur {
		s, _ := m.schema.Field(k)
		v, err := Export(e, s)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", k)
		}
		out[k] = v
	}
	return out, nil
}

func (m *Map) String(key string) (string, bool) {
	v, ok := m.Get(key).(String)
	return string(v), ok
}

func (m *Map) Int(key string) (int64, bool) {
	v, ok := m.Get(key).(Int)
	return int64(v), ok
}

func (m *Map) Float(key string) (float64, bool) {
	v, ok := m.Get(key).(Float)
	return float64(v), ok
}

func (m *Map) Bool(key string) (bool, bool) {
	v, ok := m.Get(key).(Bool)
	return bool(v), ok
}

func (m *Map) Map(key string) (*Map, bool) {
	v, ok := m.Get(key).(*Map)
	return v, ok
}

func (m *Map) Sequence(key string) (*Sequence, bool) {
	v, ok := m.Get(key).(*Sequence)
	return v, ok
}

func (m *Map) Link(key string) (*Link, bool) {
	v, ok := m.Get(key).(*Link)
	return v, ok
}
