package odm

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// Delta is a nested change tree. A Delta value descends into a child
// container; any other value applies to the key as a whole. In an unset
// tree the leaves are true.
//
// A container that cannot be patched in place (a sequence whose length
// changed, a map with a changed key that is not a valid path segment) is
// sent whole by its parent.
type Delta map[string]interface{}

// Plain converts d to nested plain maps, the shape revisions are stored in.
func (d Delta) Plain() map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if sub, ok := v.(Delta); ok {
			out[k] = sub.Plain()
			continue
		}
		out[k] = v
	}
	return out
}

// Paths counts the leaves of d.
func (d Delta) Paths() int {
	n := 0
	for _, v := range d {
		if sub, ok := v.(Delta); ok {
			n += sub.Paths()
			continue
		}
		n++
	}
	return n
}

// Flatten turns nested change trees into a partial update addressed by
// dotted paths, with list positions as numeric segments.
func Flatten(sets, unsets Delta) store.Update {
	u := store.Update{Set: map[string]interface{}{}}
	flattenSets(sets, "", u.Set)
	u.Unset = flattenUnsets(unsets, "", nil)
	sort.Strings(u.Unset)
	return u
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// addressable reports whether key can be a segment of a dotted update path.
func addressable(key string) bool {
	return key != "" && !strings.ContainsAny(key, ".$")
}

func flattenSets(d Delta, prefix string, out map[string]interface{}) {
	for k, v := range d {
		path := join(prefix, k)
		if sub, ok := v.(Delta); ok {
			flattenSets(sub, path, out)
			continue
		}
		out[path] = v
	}
}

func flattenUnsets(d Delta, prefix string, out []string) []string {
	for k, v := range d {
		path := join(prefix, k)
		if sub, ok := v.(Delta); ok {
			out = flattenUnsets(sub, path, out)
			continue
		}
		out = append(out, path)
	}
	return out
}

// diffEntry applies the per-key rules shared by maps and sequences and
// records the outcome under key.
func diffEntry(key string, cur, old Element, existed bool, s *schema.Schema, sets, unsets Delta) error {
	child, isChild := cur.(Container)
	_, opaque := cur.(*Opaque)
	if !isChild && !opaque {
		if existed && scalarEqual(cur, old) {
			return nil
		}
		v, err := Export(cur, s)
		if err != nil {
			return err
		}
		sets[key] = v
		return nil
	}
	// Opaque values are resent on every save; their contents are not compared.
	if opaque || !s.Traversed() || !existed || old != cur || wholesale(child) {
		v, err := Export(cur, s)
		if err != nil {
			return err
		}
		sets[key] = v
		return nil
	}
	childSets, childUnsets, err := child.Changes()
	if err != nil {
		return err
	}
	if len(childSets) > 0 {
		sets[key] = childSets
	}
	if len(childUnsets) > 0 {
		unsets[key] = childUnsets
	}
	return nil
}

// Changes reports the writes needed to bring the committed state up to
// the current one.
func (m *Map) Changes() (sets, unsets Delta, err error) {
	sets, unsets = Delta{}, Delta{}
	if m.pending == nil && !m.hasDirtyChild() {
		return sets, unsets, nil
	}
	cur, old := m.current(), m.committed
	for k := range old {
		if _, ok := cur[k]; !ok {
			unsets[k] = true
		}
	}
	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, _ := m.schema.Field(k)
		prev, existed := old[k]
		if err := diffEntry(k, cur[k], prev, existed, s, sets, unsets); err != nil {
			return nil, nil, errors.Wrapf(err, "field %s", k)
		}
	}
	return sets, unsets, nil
}

// wholesale reports whether c has changes that cannot be expressed as a
// partial update beneath it.
func wholesale(c Container) bool {
	switch t := c.(type) {
	case *Sequence:
		return t.pending != nil && len(t.pending.items) != len(t.committed.items)
	case *Map:
		cur := t.current()
		for k, e := range cur {
			if addressable(k) {
				continue
			}
			prev, ok := t.committed[k]
			if !ok || dirty(e) {
				return true
			}
			if _, isContainer := e.(Container); isContainer {
				if prev != e {
					return true
				}
				continue
			}
			if !scalarEqual(e, prev) {
				return true
			}
		}
		for k := range t.committed {
			if _, ok := cur[k]; !ok && !addressable(k) {
				return true
			}
		}
	}
	return false
}

func (m *Map) hasDirtyChild() bool {
	for _, e := range m.committed {
		if dirty(e) {
			return true
		}
	}
	return false
}

func dirty(e Element) bool {
	switch c := e.(type) {
	case *Map:
		return c.pending != nil || c.hasDirtyChild()
	case *Sequence:
		return c.pending != nil || c.hasDirtyChild()
	case *Opaque:
		return true
	}
	return false
}

// Changes for a sequence is positional. Positions past the committed
// length are set whole and positions past the current length are unset;
// a parent replaces a resized sequence in one write instead.
func (q *Sequence) Changes() (sets, unsets Delta, err error) {
	sets, unsets = Delta{}, Delta{}
	if q.pending == nil && !q.hasDirtyChild() {
		return sets, unsets, nil
	}
	cur, old := q.current(), q.committed
	for i := len(cur.items); i < len(old.items); i++ {
		unsets[strconv.Itoa(i)] = true
	}
	for i, e := range cur.items {
		var prev Element
		existed := i < len(old.items)
		if existed {
			prev = old.items[i]
		}
		if err := diffEntry(strconv.Itoa(i), e, prev, existed, cur.schemas[i], sets, unsets); err != nil {
			return nil, nil, errors.Wrapf(err, "index %d", i)
		}
	}
	return sets, unsets, nil
}

func (q *Sequence) hasDirtyChild() bool {
	for _, e := range q.committed.items {
		if dirty(e) {
			return true
		}
	}
	return false
}
