package store

import (
	"reflect"
	"sort"
	"strings"
)

// Match reports whether doc satisfies every clause of criteria.
func Match(doc map[string]interface{}, criteria Criteria) bool {
	for path, want := range criteria {
		got, present := Lookup(doc, path)
		if ops, ok := operators(want); ok {
			for op, arg := range ops {
				if !applyOperator(op, arg, got, present) {
					return false
				}
			}
			continue
		}
		if !matchValue(got, present, want) {
			return false
		}
	}
	return true
}

func operators(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(op string, arg, got interface{}, present bool) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$ne":
		return !matchValue(got, present, arg)
	case "$in":
		list, ok := arg.([]interface{})
		if !ok {
			return false
		}
		for _, it := range list {
			if matchValue(got, present, it) {
				return true
			}
		}
		return false
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false
		}
		c, ok := Compare(got, arg)
		if !ok {
			return false
		}
		switch op {
		case "$lt":
			return c < 0
		case "$lte":
			return c <= 0
		case "$gt":
			return c > 0
		default:
			return c >= 0
		}
	}
	return false
}

// matchValue follows document-store equality: null matches a missing
// field and a scalar matches any element of a list field.
func matchValue(got interface{}, present bool, want interface{}) bool {
	if want == nil {
		return !present || got == nil
	}
	if !present {
		return false
	}
	if Equal(got, want) {
		return true
	}
	if l, ok := got.([]interface{}); ok {
		for _, it := range l {
			if Equal(it, want) {
				return true
			}
		}
	}
	return false
}

// Equal compares raw values, treating all numeric kinds alike.
func Equal(a, b interface{}) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
		return false
	}
	if ia, ok := a.(ID); ok {
		if ib, ok := b.(ID); ok {
			return ia == ib
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two numbers, two strings or two identifiers.
func Compare(a, b interface{}) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := text(a)
	if !ok {
		return 0, false
	}
	sb, ok := text(b)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func text(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case ID:
		return string(s), true
	}
	return "", false
}

// SortDocuments orders docs in place. Missing values sort first.
func SortDocuments(docs []map[string]interface{}, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, okA := Lookup(docs[i], f.Field)
			b, okB := Lookup(docs[j], f.Field)
			var c int
			switch {
			case !okA && !okB:
				c = 0
			case !okA:
				c = -1
			case !okB:
				c = 1
			default:
				c, _ = Compare(a, b)
			}
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
