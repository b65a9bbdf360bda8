package odm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
	"github.com/shmookey/coconut/pkg/store/memory"
)

// tickingClock advances one second per reading so successive timestamps
// always differ.
type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestSession(t *testing.T) (*Session, *memory.Store) {
	t.Helper()
	st := memory.New()
	clock := &tickingClock{now: time.Unix(1700000000, 0)}
	return NewSession(st, WithClock(clock.Now)), st
}

func thingType(t *testing.T, sess *Session) *Type {
	t.Helper()
	typ, err := sess.Register("Thing", schema.Map(map[string]*schema.Schema{
		"foo":  schema.String(),
		"bar":  schema.String(),
		"tags": schema.SeqOf(schema.String()),
		"addr": schema.Map(map[string]*schema.Schema{"city": schema.String(), "zip": schema.Int()}),
		"blob": schema.AnyMap().Opaque(),
		"any":  schema.Any(),
	}))
	require.NoError(t, err)
	return typ
}

func savedThing(t *testing.T, typ *Type) *Document {
	t.Helper()
	d, err := typ.New(map[string]interface{}{
		"foo":  "something",
		"bar":  "other",
		"tags": []interface{}{"a", "b", "c"},
		"addr": map[string]interface{}{"city": "Perth", "zip": 6000},
	})
	require.NoError(t, err)
	require.NoError(t, d.Save(context.Background()))
	return d
}

func TestChangesMinimalScalar(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	require.NoError(t, d.Set("bar", "value"))
	sets, unsets, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"bar": "value"}, sets)
	require.Empty(t, unsets)
}

func TestChangesNoOpAssignment(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	require.NoError(t, d.Set("foo", "something"))
	sets, unsets, err := d.Changes()
	require.NoError(t, err)
	require.Empty(t, sets)
	require.Empty(t, unsets)
}

func TestChangesNewSubtreeSentWhole(t *testing.T) {
	sess, _ := newTestSession(t)
	typ, err := sess.Register("Loose", nil)
	require.NoError(t, err)
	d, err := typ.New(nil, F("foo", "x"))
	require.NoError(t, err)
	require.NoError(t, d.Save(context.Background()))

	require.NoError(t, d.Set("thang", map[string]interface{}{"thing": 1, "thong": 2}))
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"thang": map[string]interface{}{"thing": int64(1), "thong": int64(2)}}, sets)
	require.Equal(t, store.Update{
		Set:   map[string]interface{}{"thang": map[string]interface{}{"thing": int64(1), "thong": int64(2)}},
		Unset: nil,
	}, Flatten(sets, nil))
}

func TestChangesSequenceLengthRebuild(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	tags, ok := d.Sequence("tags")
	require.True(t, ok)
	require.NoError(t, tags.Append("d"))

	sets, unsets, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"tags": []interface{}{"a", "b", "c", "d"}}, sets)
	require.Empty(t, unsets)
	require.Equal(t, map[string]interface{}{"tags": []interface{}{"a", "b", "c", "d"}}, Flatten(sets, unsets).Set)
}

func TestChangesSequencePositional(t *testing.T) {
	sess, st := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	tags, _ := d.Sequence("tags")
	require.NoError(t, tags.Set(1, "x"))
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"tags": Delta{"1": "x"}}, sets)
	require.Equal(t, map[string]interface{}{"tags.1": "x"}, Flatten(sets, nil).Set)

	require.NoError(t, d.Save(context.Background()))
	raw, err := st.FindOne(context.Background(), "Thing", store.Criteria{store.IDField: d.ID()})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "x", "c"}, raw["tags"])
}

func TestChangesNestedMapPartial(t *testing.T) {
	sess, st := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	addr, ok := d.Map.Map("addr")
	require.True(t, ok)
	require.NoError(t, addr.Set("city", "Fremantle"))
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"addr": Delta{"city": "Fremantle"}}, sets)

	require.NoError(t, d.Save(context.Background()))
	raw, err := st.FindOne(context.Background(), "Thing", store.Criteria{store.IDField: d.ID()})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"city": "Fremantle", "zip": int64(6000)}, raw["addr"])

	sets, _, err = d.Changes()
	require.NoError(t, err)
	require.Empty(t, sets)
}

func TestChangesReplacedContainerSentWhole(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	require.NoError(t, d.Set("addr", map[string]interface{}{"city": "Perth"}))
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"addr": map[string]interface{}{"city": "Perth", "zip": nil}}, sets)
}

func TestChangesDeletedKeyIsUnset(t *testing.T) {
	sess, st := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	d.Delete("bar")
	sets, unsets, err := d.Changes()
	require.NoError(t, err)
	require.Empty(t, sets)
	require.Equal(t, Delta{"bar": true}, unsets)

	require.NoError(t, d.Save(context.Background()))
	raw, err := st.FindOne(context.Background(), "Thing", store.Criteria{store.IDField: d.ID()})
	require.NoError(t, err)
	_, present := raw["bar"]
	require.False(t, present)
}

func TestChangesOpaqueAlwaysResent(t *testing.T) {
	sess, _ := newTestSession(t)
	typ := thingType(t, sess)
	d, err := typ.New(nil, F("blob", map[string]interface{}{"k": "v"}))
	require.NoError(t, err)
	require.NoError(t, d.Save(context.Background()))

	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"blob": map[string]interface{}{"k": "v"}}, sets)
}

func TestCopyOnWriteIsolation(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	before, err := d.Export()
	require.NoError(t, err)
	require.NoError(t, d.Set("foo", "changed"))
	tags, _ := d.Sequence("tags")
	require.NoError(t, tags.Append("z"))

	require.Equal(t, "something", before.(map[string]interface{})["foo"])
	require.Equal(t, String("something"), d.committed["foo"])
	require.Len(t, tags.committed.items, 3)
	require.Equal(t, 4, tags.Len())

	d.Flush()
	require.Equal(t, String("changed"), d.committed["foo"])
	require.Len(t, tags.committed.items, 4)
	require.False(t, d.Dirty())
	require.False(t, tags.Dirty())
}

func TestUnknownKeyLeavesCommittedState(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	err := d.Set("nope", 1)
	var ke *errdefs.ValidationKeyError
	require.True(t, errors.As(err, &ke))
	require.False(t, d.Dirty())
	require.False(t, d.Has("nope"))

	err = d.Update(map[string]interface{}{"foo": "ok", "nope": 1})
	require.True(t, errdefs.IsValidation(err))
	require.False(t, d.Dirty())
	foo, _ := d.Map.String("foo")
	require.Equal(t, "something", foo)
}

func TestUpdateKeepsOtherKeys(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))

	require.NoError(t, d.Update(map[string]interface{}{"foo": "a", "bar": "b"}))
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"foo": "a", "bar": "b"}, sets)
	require.True(t, d.Has("tags"))
}

func TestSequenceRemove(t *testing.T) {
	sess, _ := newTestSession(t)
	d := savedThing(t, thingType(t, sess))
	tags, _ := d.Sequence("tags")

	require.NoError(t, tags.Remove(0))
	require.Equal(t, []Element{String("b"), String("c")}, tags.Items())
	sets, _, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"tags": []interface{}{"b", "c"}}, sets)

	require.Error(t, tags.Remove(5))
	require.Error(t, tags.Set(7, "x"))
}

func TestFlattenNested(t *testing.T) {
	u := Flatten(
		Delta{"a": Delta{"b": Delta{"2": "x"}}, "c": 1},
		Delta{"d": true, "a": Delta{"e": true}},
	)
	require.Equal(t, map[string]interface{}{"a.b.2": "x", "c": 1}, u.Set)
	require.Equal(t, []string{"a.e", "d"}, u.Unset)
}

func TestDeltaPlainAndPaths(t *testing.T) {
	d := Delta{"a": Delta{"b": 1, "c": 2}, "d": []interface{}{1}}
	require.Equal(t, 3, d.Paths())
	plain := d.Plain()
	_, nested := plain["a"].(map[string]interface{})
	require.True(t, nested)
}

func TestEmptyKeyInWildcardMap(t *testing.T) {
	ctx := context.Background()
	sess, st := newTestSession(t)
	typ, err := sess.Register("W", schema.Map(map[string]*schema.Schema{"meta": schema.AnyMap()}))
	require.NoError(t, err)
	d, err := typ.New(nil, F("meta", map[string]interface{}{"keep": "me"}))
	require.NoError(t, err)
	require.NoError(t, d.Save(ctx))

	meta, ok := d.Map.Map("meta")
	require.True(t, ok)
	require.NoError(t, meta.Set("", "x"))
	sets, unsets, err := d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"meta": map[string]interface{}{"keep": "me", "": "x"}}, sets)
	require.Empty(t, unsets)

	require.NoError(t, d.Save(ctx))
	raw, err := st.FindOne(ctx, "W", store.Criteria{store.IDField: d.ID()})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"keep": "me", "": "x"}, raw["meta"])

	// ordinary keys still produce a partial update
	require.NoError(t, meta.Set("more", "y"))
	sets, _, err = d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"meta": Delta{"more": "y"}}, sets)

	// so does an unchanged empty key
	require.NoError(t, meta.Set("", "x"))
	sets, _, err = d.Changes()
	require.NoError(t, err)
	require.Equal(t, Delta{"meta": Delta{"more": "y"}}, sets)
}

func listType(t *testing.T, sess *Session) *Type {
	t.Helper()
	typ, err := sess.Register("L", schema.Map(map[string]*schema.Schema{
		"items": schema.SeqOf(schema.Map(map[string]*schema.Schema{"v": schema.Int()})),
		"pair":  schema.Seq(schema.String(), schema.Int()),
	}))
	require.NoError(t, err)
	return typ
}

func TestSequenceRemoveKeepsLiveChildren(t *testing.T) {
	ctx := context.Background()
	sess, st := newTestSession(t)
	d, err := listType(t, sess).New(nil, F("items", []interface{}{
		map[string]interface{}{"v": 1},
		map[string]interface{}{"v": 2},
	}))
	require.NoError(t, err)
	require.NoError(t, d.Save(ctx))

	l, ok := d.Map.Sequence("items")
	require.True(t, ok)
	held, ok := l.Get(1).(*Map)
	require.True(t, ok)

	require.NoError(t, l.Remove(0))
	require.Same(t, held, l.Get(0))
	require.NoError(t, held.Set("v", 99))

	require.NoError(t, d.Save(ctx))
	raw, err := st.FindOne(ctx, "L", store.Criteria{store.IDField: d.ID()})
	require.NoError(t, err)
	require.Equal(t, []interface{}{map[string]interface{}{"v": int64(99)}}, raw["items"])
}

func TestSequenceRemoveRechecksPositionalSchemas(t *testing.T) {
	sess, _ := newTestSession(t)
	d, err := listType(t, sess).New(nil, F("pair", []interface{}{"a", 1}))
	require.NoError(t, err)
	require.NoError(t, d.Save(context.Background()))

	pair, _ := d.Map.Sequence("pair")
	err = pair.Remove(0)
	require.True(t, errdefs.IsValidation(err))
	require.False(t, pair.Dirty())
	require.Equal(t, 2, pair.Len())

	require.NoError(t, pair.Remove(1))
	require.Equal(t, []Element{String("a")}, pair.Items())
}
