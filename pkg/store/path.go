package store

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"
)

// Lookup walks a dotted path through nested maps, lists and references.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var node interface{} = doc
	for _, seg := range strings.Split(path, ".") {
		switch n := node.(type) {
		case map[string]interface{}:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		case Ref:
			switch seg {
			case "$ref":
				node = n.Collection
			case "$id":
				node = n.ID
			default:
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return node, true
}

// ApplyUpdate applies u to doc in place, following the addressing rules of
// a partial-update store: missing intermediate maps are created, list
// positions past the end are padded with nulls, and unsetting a list
// position nulls it rather than shifting the list.
func ApplyUpdate(doc map[string]interface{}, u Update) error {
	paths := make([]string, 0, len(u.Set))
	for p := range u.Set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, err := setIn(doc, strings.Split(p, "."), u.Set[p]); err != nil {
			return errors.Wrapf(err, "set %s", p)
		}
	}
	for _, p := range u.Unset {
		if err := unsetIn(doc, strings.Split(p, ".")); err != nil {
			return errors.Wrapf(err, "unset %s", p)
		}
	}
	return nil
}

func setIn(node interface{}, segs []string, value interface{}) (interface{}, error) {
	if len(segs) == 0 {
		return value, nil
	}
	switch n := node.(type) {
	case nil:
		child, err := setIn(nil, segs[1:], value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{segs[0]: child}, nil
	case map[string]interface{}:
		child, err := setIn(n[segs[0]], segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[segs[0]] = child
		return n, nil
	case []interface{}:
		i, err := strconv.Atoi(segs[0])
		if err != nil || i < 0 {
			return nil, errors.Errorf("cannot address list with %q", segs[0])
		}
		for len(n) <= i {
			n = append(n, nil)
		}
		child, err := setIn(n[i], segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[i] = child
		return n, nil
	}
	return nil, errors.Errorf("cannot create field %q in %T", segs[0], node)
}

func unsetIn(node interface{}, segs []string) error {
	switch n := node.(type) {
	case map[string]interface{}:
		if len(segs) == 1 {
			delete(n, segs[0])
			return nil
		}
		child, ok := n[segs[0]]
		if !ok {
			return nil
		}
		if l, ok := child.([]interface{}); ok && len(segs) == 2 {
			return unsetListItem(l, segs[1])
		}
		return unsetIn(child, segs[1:])
	case []interface{}:
		if len(segs) == 1 {
			return unsetListItem(n, segs[0])
		}
		i, err := strconv.Atoi(segs[0])
		if err != nil || i < 0 || i >= len(n) {
			return nil
		}
		return unsetIn(n[i], segs[1:])
	}
	return nil
}

func unsetListItem(l []interface{}, seg string) error {
	i, err := strconv.Atoi(seg)
	if err != nil {
		return errors.Errorf("cannot address list with %q", seg)
	}
	if i >= 0 && i < len(l) {
		l[i] = nil
	}
	return nil
}

// Clone deep-copies a raw document so callers never share nested state with
// a driver's internal copy.
func Clone(doc map[string]interface{}) (map[string]interface{}, error) {
	if doc == nil {
		return nil, nil
	}
	c, err := copystructure.Copy(doc)
	if err != nil {
		return nil, errors.Wrap(err, "copy document")
	}
	return c.(map[string]interface{}), nil
}
