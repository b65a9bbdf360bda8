package odm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
)

// seqState keeps the schema each position was imported under next to the
// element, since match-any lists choose it per value.
type seqState struct {
	items   []Element
	schemas []*schema.Schema
}

func (st *seqState) clone() *seqState {
	return &seqState{
		items:   append([]Element(nil), st.items...),
		schemas: append([]*schema.Schema(nil), st.schemas...),
	}
}

// Sequence is a copy-on-write ordered container.
type Sequence struct {
	schema    *schema.Schema
	parent    node
	committed *seqState
	pending   *seqState
}

var _ Container = (*Sequence)(nil)

func newSequence(s *schema.Schema, parent node) *Sequence {
	if s == nil {
		s = schema.Wildcard
	}
	return &Sequence{schema: s, parent: parent, committed: &seqState{}}
}

func (*Sequence) isElement() {}

func (q *Sequence) Schema() *schema.Schema { return q.schema }

func (q *Sequence) Document() *Document {
	if q.parent == nil {
		return nil
	}
	return q.parent.Document()
}

func (q *Sequence) current() *seqState {
	if q.pending != nil {
		return q.pending
	}
	return q.committed
}

func (q *Sequence) buffer() *seqState {
	if q.pending == nil {
		q.pending = q.committed.clone()
	}
	return q.pending
}

func (q *Sequence) Dirty() bool { return q.pending != nil }

func (q *Sequence) Len() int { return len(q.current().items) }

// Get returns the element at i, or nil when i is out of range.
func (q *Sequence) Get(i int) Element {
	cur := q.current()
	if i < 0 || i >= len(cur.items) {
		return nil
	}
	return cur.items[i]
}

// Items returns a snapshot of the current elements.
func (q *Sequence) Items() []Element {
	return append([]Element(nil), q.current().items...)
}

// importAt resolves the schema for position i and imports value under it.
// Match-any lists keep the first candidate that accepts the value.
func (q *Sequence) importAt(i int, value interface{}) (Element, *schema.Schema, error) {
	candidates, err := schema.ItemCandidates(i, q.schema)
	if err != nil {
		return nil, nil, err
	}
	var firstErr error
	for _, s := range candidates {
		e, err := Import(value, s, q)
		if err == nil {
			return e, s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if len(candidates) > 1 {
		return nil, nil, &errdefs.ValidationListError{Index: i, Reason: fmt.Sprintf("no item schema accepts the value: %v", firstErr)}
	}
	return nil, nil, errors.Wrapf(firstErr, "index %d", i)
}

func (q *Sequence) Append(value interface{}) error {
	i := q.Len()
	e, s, err := q.importAt(i, value)
	if err != nil {
		return err
	}
	buf := q.buffer()
	buf.items = append(buf.items, e)
	buf.schemas = append(buf.schemas, s)
	return nil
}

// Set replaces the element at i, which must already exist.
func (q *Sequence) Set(i int, value interface{}) error {
	if i < 0 || i >= q.Len() {
		return &errdefs.ValidationListError{Index: i, Reason: fmt.Sprintf("index out of range for length %d", q.Len())}
	}
	e, s, err := q.importAt(i, value)
	if err != nil {
		return err
	}
	buf := q.buffer()
	buf.items[i] = e
	buf.schemas[i] = s
	return nil
}

// Remove drops the element at i, shifting later elements down. Shifted
// elements keep their identity unless their new position resolves to a
// different schema, in which case they are re-imported under it.
func (q *Sequence) Remove(i int) error {
	cur := q.current()
	if i < 0 || i >= len(cur.items) {
		return &errdefs.ValidationListError{Index: i, Reason: fmt.Sprintf("index out of range for length %d", len(cur.items))}
	}
	next := &seqState{
		items:   make([]Element, 0, len(cur.items)-1),
		schemas: make([]*schema.Schema, 0, len(cur.items)-1),
	}
	next.items = append(next.items, cur.items[:i]...)
	next.schemas = append(next.schemas, cur.schemas[:i]...)
	for j := i + 1; j < len(cur.items); j++ {
		pos := j - 1
		e, s := cur.items[j], cur.schemas[j]
		candidates, err := schema.ItemCandidates(pos, q.schema)
		if err != nil {
			return err
		}
		if !hasSchema(candidates, s) {
			v, err := Export(e, s)
			if err != nil {
				return errors.Wrapf(err, "index %d", j)
			}
			if e, s, err = q.importAt(pos, v); err != nil {
				return err
			}
		}
		next.items = append(next.items, e)
		next.schemas = append(next.schemas, s)
	}
	q.pending = next
	return nil
}

func hasSchema(candidates []*schema.Schema, s *schema.Schema) bool {
	for _, c := range candidates {
		if c == s {
			return true
		}
	}
	return false
}

func (q *Sequence) Flush() {
	if q.pending != nil {
		q.committed = q.pending
		q.pending = nil
	}
	for _, e := range q.committed.items {
		if c, ok := e.(Container); ok {
			c.Flush()
		}
	}
}

func (q *Sequence) Export() (interface{}, error) {
	cur := q.current()
	out := make([]interface{}, len(cur.items))
	for i, e := range cur.items {
		v, err := Export(e, cur.schemas[i])
		if err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
		out[i] = v
	}
	return out, nil
}
