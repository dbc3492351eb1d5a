package keyexpr

import (
	"testing"

	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	typ    string
	fields map[string]FieldValue
}

func (r fakeRecord) RecordType() string { return r.typ }
func (r fakeRecord) Field(name string) (FieldValue, bool) {
	fv, ok := r.fields[name]
	return fv, ok
}

func TestFieldScalar(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{
		"category": {Name: "category", Elements: []tuple.Element{tuple.Str("Electronics")}},
	}}
	paths, err := Evaluate(Field("category"), rec)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, "Electronics", paths[0][0].AsString())
}

func TestFieldOptionalAbsent(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{
		"discount": {Name: "discount", Elements: nil},
	}}
	paths, err := Evaluate(Field("discount"), rec)
	require.NoError(t, err)
	require.Len(t, paths, 0)
}

func TestFieldRepeatedFanout(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{
		"tags": {Name: "tags", Elements: []tuple.Element{tuple.Str("a"), tuple.Str("b"), tuple.Str("c")}},
	}}
	paths, err := Evaluate(Field("tags"), rec)
	require.NoError(t, err)
	require.Len(t, paths, 3)
}

func TestConcatCartesianProduct(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{
		"category": {Name: "category", Elements: []tuple.Element{tuple.Str("Electronics")}},
		"tags":     {Name: "tags", Elements: []tuple.Element{tuple.Str("a"), tuple.Str("b")}},
	}}
	paths, err := Evaluate(Concat(Field("category"), Field("tags")), rec)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.Equal(t, "Electronics", paths[0][0].AsString())
	require.Equal(t, "a", paths[0][1].AsString())
	require.Equal(t, "b", paths[1][1].AsString())
}

func TestConcatEmptyFanoutShortCircuits(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{
		"category": {Name: "category", Elements: []tuple.Element{tuple.Str("Electronics")}},
		"discount": {Name: "discount", Elements: nil},
	}}
	paths, err := Evaluate(Concat(Field("category"), Field("discount")), rec)
	require.NoError(t, err)
	require.Len(t, paths, 0)
}

func TestRangeExprExtractsBoundary(t *testing.T) {
	rec := fakeRecord{typ: "Reservation", fields: map[string]FieldValue{
		"period": {
			Name: "period", IsRange: true,
			Lower: Bound{Value: tuple.Int(10)}, Upper: Bound{Value: tuple.Int(20)},
			LowerType: HalfOpen, UpperType: HalfOpen,
		},
	}}
	lower, err := Evaluate(RangeExpr("period", LowerBound, HalfOpen), rec)
	require.NoError(t, err)
	require.Equal(t, int64(10), lower[0][0].AsInt())

	upper, err := Evaluate(RangeExpr("period", UpperBound, HalfOpen), rec)
	require.NoError(t, err)
	require.Equal(t, int64(20), upper[0][0].AsInt())
}

func TestRangeExprInfiniteBoundErrors(t *testing.T) {
	rec := fakeRecord{typ: "Reservation", fields: map[string]FieldValue{
		"period": {Name: "period", IsRange: true, Upper: Bound{Infinite: true}},
	}}
	_, err := Evaluate(RangeExpr("period", UpperBound, HalfOpen), rec)
	require.Error(t, err)
}

func TestMissingFieldErrors(t *testing.T) {
	rec := fakeRecord{typ: "Product", fields: map[string]FieldValue{}}
	_, err := Evaluate(Field("nope"), rec)
	require.Error(t, err)
	var mfe *MissingFieldError
	require.ErrorAs(t, err, &mfe)
}
