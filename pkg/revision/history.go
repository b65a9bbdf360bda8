package revision

import (
	"context"
	"strconv"
	"strings"

	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/store"
)

// History is a backward cursor over the revisions of one document,
// optionally narrowed to those that set one dotted field path.
//
//	h, _ := rec.History(doc, "title")
//	for h.Next(ctx) {
//		fmt.Println(h.Value())
//	}
//	if err := h.Err(); err != nil { ... }
//
// A History cannot be rewound; build a new one to start over.
type History struct {
	typ   *odm.Type
	item  store.Ref
	field string
	path  []string

	before  *float64
	current *odm.Document
	value   interface{}
	err     error
	done    bool
}

// History starts a cursor at the newest revision of doc. field may be empty
// to see whole change sets.
func (r *Recorder) History(doc *odm.Document, field string) (*History, error) {
	ref, err := doc.Ref()
	if err != nil {
		return nil, err
	}
	h := &History{typ: r.typ, item: ref, field: field}
	if field != "" {
		h.path = strings.Split(field, ".")
	}
	return h, nil
}

func (h *History) criteria() store.Criteria {
	c := store.Criteria{FieldItem: h.item}
	if h.field != "" {
		c["changes.set."+h.field] = map[string]interface{}{"$exists": true}
	}
	return c
}

// Next moves to the next older revision. It returns false once the log is
// exhausted or a lookup failed; check Err afterwards.
func (h *History) Next(ctx context.Context) bool {
	if h.done {
		return false
	}
	c := h.criteria()
	if h.before != nil {
		c[FieldDate] = map[string]interface{}{"$lt": *h.before}
	}
	docs, err := h.typ.Find(ctx, c, store.FindOptions{
		Limit: 1,
		Sort:  []store.SortField{{Field: FieldDate, Desc: true}},
	})
	if err != nil {
		h.err = err
		h.done = true
		return false
	}
	if len(docs) == 0 {
		h.done = true
		h.current, h.value = nil, nil
		return false
	}
	h.current = docs[0]
	date := Date(h.current)
	h.before = &date
	h.value = h.extract(h.current)
	return true
}

// Value is the change set (no field) or the field value recorded by the
// current revision.
func (h *History) Value() interface{} { return h.value }

// Revision is the current revision record.
func (h *History) Revision() *odm.Document { return h.current }

func (h *History) Err() error { return h.err }

// First returns the value recorded by the oldest matching revision, without
// moving the cursor. ok is false when no revision matches.
func (h *History) First(ctx context.Context) (value interface{}, ok bool, err error) {
	docs, err := h.typ.Find(ctx, h.criteria(), store.FindOptions{
		Limit: 1,
		Sort:  []store.SortField{{Field: FieldDate}},
	})
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return h.extract(docs[0]), true, nil
}

func (h *History) extract(rev *odm.Document) interface{} {
	sets, _ := Changes(rev)
	if h.path == nil {
		return sets
	}
	var node interface{} = sets
	for _, seg := range h.path {
		switch n := node.(type) {
		case map[string]interface{}:
			node = n[seg]
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			node = n[i]
		default:
			return nil
		}
	}
	return node
}
