package odm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

func personSchema() *schema.Schema {
	return schema.Map(map[string]*schema.Schema{
		"name":  schema.String(),
		"age":   schema.Int(),
		"score": schema.Float(),
		"admin": schema.Bool(),
		"tags":  schema.SeqOf(schema.String()),
		"addr":  schema.Map(map[string]*schema.Schema{"city": schema.String(), "zip": schema.Int()}),
		"boss":  schema.Ref("Person"),
		"extra": schema.Any(),
	})
}

func TestImportExportRoundTrip(t *testing.T) {
	v := map[string]interface{}{
		"name":  "fred",
		"age":   int64(42),
		"score": 1.5,
		"admin": true,
		"tags":  []interface{}{"a", "b"},
		"addr":  map[string]interface{}{"city": "Perth", "zip": int64(6000)},
		"boss":  store.ID("b0551d"),
		"extra": map[string]interface{}{"deep": []interface{}{int64(1), "two", nil}},
	}
	e, err := Import(v, personSchema(), nil)
	require.NoError(t, err)
	out, err := Export(e, personSchema())
	require.NoError(t, err)
	require.Equal(t, v, out)
}

func TestImportWildcardRoundTrip(t *testing.T) {
	v := map[string]interface{}{
		"n":    int64(1),
		"list": []interface{}{map[string]interface{}{"k": "v"}, 2.5, false},
		"ref":  store.Ref{Collection: "Person", ID: "p1"},
	}
	e, err := Import(v, schema.Wildcard, nil)
	require.NoError(t, err)
	require.IsType(t, &Map{}, e)
	require.IsType(t, &Link{}, e.(*Map).Get("ref"))
	out, err := Export(e, nil)
	require.NoError(t, err)
	require.Equal(t, v, out)
}

func TestImportNullAndNormalisation(t *testing.T) {
	e, err := Import(nil, schema.String(), nil)
	require.NoError(t, err)
	require.Nil(t, e)

	e, err = Import(7, schema.Int(), nil)
	require.NoError(t, err)
	require.Equal(t, Int(7), e)

	e, err = Import([]string{"x", "y"}, schema.SeqOf(schema.String()), nil)
	require.NoError(t, err)
	require.Equal(t, 2, e.(*Sequence).Len())
}

func TestFloatFieldAcceptsInteger(t *testing.T) {
	e, err := Import(int64(3), schema.Float(), nil)
	require.NoError(t, err)
	require.Equal(t, Float(3), e)
}

func TestImportTypeMismatch(t *testing.T) {
	_, err := Import(5, schema.String(), nil)
	var te *errdefs.ValidationTypeError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "string", te.Expected)
	require.Equal(t, "integer", te.Got)
	require.True(t, errdefs.IsValidation(err))

	_, err = Import(1.5, schema.Int(), nil)
	require.True(t, errdefs.IsValidation(err))

	_, err = Import(map[string]interface{}{"city": 1}, personSchema().Fields["addr"], nil)
	require.True(t, errors.As(err, &te))
}

func TestImportUnknownKey(t *testing.T) {
	_, err := Import(map[string]interface{}{"nope": 1}, personSchema(), nil)
	var ke *errdefs.ValidationKeyError
	require.True(t, errors.As(err, &ke))
	require.Equal(t, "nope", ke.Key)
}

func TestImportFilteredMapDropsUnknownKeys(t *testing.T) {
	s := schema.Map(map[string]*schema.Schema{"a": schema.Int()}).Filtered()
	e, err := Import(map[string]interface{}{"a": 1, "b": 2}, s, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, e.(*Map).Keys())
}

func TestImportFillsDefaultsWithCopies(t *testing.T) {
	def := []interface{}{"x"}
	s := schema.Map(map[string]*schema.Schema{
		"tags":  schema.SeqOf(schema.String()).WithDefault(def),
		"title": schema.String(),
	})
	e, err := Import(map[string]interface{}{}, s, nil)
	require.NoError(t, err)
	m := e.(*Map)
	require.True(t, m.Has("title"))
	require.Nil(t, m.Get("title"))

	tags, ok := m.Sequence("tags")
	require.True(t, ok)
	require.NoError(t, tags.Append("y"))
	require.Equal(t, []interface{}{"x"}, def)
}

func TestImportMatchAnySequence(t *testing.T) {
	s := schema.Seq(schema.Int(), schema.String()).MatchAny()
	e, err := Import([]interface{}{"a", 1}, s, nil)
	require.NoError(t, err)
	q := e.(*Sequence)
	require.Equal(t, String("a"), q.Get(0))
	require.Equal(t, Int(1), q.Get(1))

	err = q.Append(true)
	var le *errdefs.ValidationListError
	require.True(t, errors.As(err, &le))
	require.Equal(t, 2, le.Index)
}

func TestImportExactSequenceBounds(t *testing.T) {
	s := schema.Seq(schema.String(), schema.Int())
	_, err := Import([]interface{}{"a", 1}, s, nil)
	require.NoError(t, err)
	_, err = Import([]interface{}{"a", 1, 2}, s, nil)
	require.True(t, errdefs.IsValidation(err))
}

func TestImportOpaque(t *testing.T) {
	s := schema.AnyMap().Opaque()
	raw := map[string]interface{}{"set": map[string]interface{}{"a.b": 1}}
	e, err := Import(raw, s, nil)
	require.NoError(t, err)
	o, ok := e.(*Opaque)
	require.True(t, ok)
	require.Equal(t, raw, o.Value)

	// the opaque copy does not alias the caller's data
	raw["set"] = nil
	require.NotNil(t, o.Value.(map[string]interface{})["set"])
}

func TestImportElementValues(t *testing.T) {
	src, err := Import(map[string]interface{}{"city": "Perth"}, personSchema().Fields["addr"], nil)
	require.NoError(t, err)
	e, err := Import(src, personSchema().Fields["addr"], nil)
	require.NoError(t, err)
	require.NotSame(t, src, e)
	city, _ := e.(*Map).String("city")
	require.Equal(t, "Perth", city)

	e, err = Import(String("x"), schema.String(), nil)
	require.NoError(t, err)
	require.Equal(t, String("x"), e)
}

func TestExportTypeMismatch(t *testing.T) {
	_, err := Export(String("x"), schema.Int())
	require.True(t, errdefs.IsValidation(err))
}
