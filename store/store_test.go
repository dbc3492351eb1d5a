package store

import (
	"context"
	"testing"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/kv/memkv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

func productSchema() *schema.Schema {
	sch := schema.New(schema.Version{1, 0, 0})
	_ = sch.AddEntity(&schema.Entity{
		Name: "Product",
		FieldsOrdered: []schema.FieldDescriptor{
			{Name: "id", Tag: 1, Kind: schema.FieldScalar},
			{Name: "category", Tag: 2, Kind: schema.FieldScalar},
			{Name: "tags", Tag: 3, Kind: schema.FieldRepeated},
		},
		PrimaryKey:      keyexpr.Field("id"),
		EnforcePKUnique: true,
	})
	byCategory := schema.NewIndex("byCategory", schema.IndexValue, keyexpr.Field("category"), []string{"Product"}, nil)
	_ = byCategory.SetState(schema.StateWriteOnly)
	_ = byCategory.SetState(schema.StateReadable)
	_ = sch.AddIndex(byCategory)
	return sch
}

func productValues(id int64, category string, tags ...string) map[string]keyexpr.FieldValue {
	tagElems := make([]tuple.Element, len(tags))
	for i, tg := range tags {
		tagElems[i] = tuple.Str(tg)
	}
	return map[string]keyexpr.FieldValue{
		"id":       {Name: "id", Elements: []tuple.Element{tuple.Int(id)}},
		"category": {Name: "category", Elements: []tuple.Element{tuple.Str(category)}},
		"tags":     {Name: "tags", Elements: tagElems},
	}
}

func TestSaveFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sch := productSchema()
	s := New(db, sch, subspace.FromString("S"))

	pk, err := s.Save(ctx, nil, "Product", productValues(1, "Electronics", "a", "b"))
	require.NoError(t, err)
	require.Equal(t, int64(1), pk[0].AsInt())

	rec, found, err := s.Fetch(ctx, nil, "Product", pk)
	require.NoError(t, err)
	require.True(t, found)
	fv, ok := rec.Field("category")
	require.True(t, ok)
	require.Equal(t, "Electronics", fv.Elements[0].AsString())
	tagFv, ok := rec.Field("tags")
	require.True(t, ok)
	require.Len(t, tagFv.Elements, 2)
}

func TestSaveMaintainsIndex(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sch := productSchema()
	s := New(db, sch, subspace.FromString("S"))

	_, err := s.Save(ctx, nil, "Product", productValues(1, "Electronics"))
	require.NoError(t, err)

	begin, end := s.IndexSubspace("byCategory").Range()
	count := 0
	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Range(ctx, begin, end)
		if err != nil {
			return err
		}
		defer c.Close()
		for {
			k, _, err := c.Next(ctx)
			if err != nil {
				return err
			}
			if k == nil {
				break
			}
			count++
		}
		return nil
	}))
	require.Equal(t, 1, count)
}

func TestDeleteRetractsRecordAndIndex(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sch := productSchema()
	s := New(db, sch, subspace.FromString("S"))

	pk, err := s.Save(ctx, nil, "Product", productValues(1, "Electronics"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, nil, "Product", pk))

	_, found, err := s.Fetch(ctx, nil, "Product", pk)
	require.NoError(t, err)
	require.False(t, found)
}

func TestScanEntity(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sch := productSchema()
	s := New(db, sch, subspace.FromString("S"))

	for i := int64(1); i <= 3; i++ {
		_, err := s.Save(ctx, nil, "Product", productValues(i, "Electronics"))
		require.NoError(t, err)
	}

	recs, err := s.ScanEntity(ctx, nil, "Product")
	require.NoError(t, err)
	require.Len(t, recs, 3)
}

func TestUnknownEntityErrors(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sch := productSchema()
	s := New(db, sch, subspace.FromString("S"))

	_, err := s.Save(ctx, nil, "Ghost", nil)
	require.Error(t, err)
	var mismatch *schema.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
}
