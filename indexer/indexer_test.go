package indexer

import (
	"context"
	"testing"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/kv/memkv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/store"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*store.RecordStore, *schema.Index) {
	t.Helper()
	sch := schema.New(schema.Version{Major: 1})
	require.NoError(t, sch.AddEntity(&schema.Entity{
		Name: "Product",
		FieldsOrdered: []schema.FieldDescriptor{
			{Name: "id", Tag: 1, Kind: schema.FieldScalar},
			{Name: "category", Tag: 2, Kind: schema.FieldScalar},
		},
		PrimaryKey: keyexpr.Field("id"),
	}))
	byCategory := schema.NewIndex("byCategory", schema.IndexValue, keyexpr.Field("category"), []string{"Product"}, nil)
	require.NoError(t, sch.AddIndex(byCategory)) // starts DISABLED, no maintenance yet

	db := memkv.New()
	st := store.New(db, sch, subspace.FromString("S"))

	ctx := context.Background()
	for i := int64(0); i < 25; i++ {
		_, err := st.Save(ctx, nil, "Product", map[string]keyexpr.FieldValue{
			"id":       {Name: "id", Elements: []tuple.Element{tuple.Int(i)}},
			"category": {Name: "category", Elements: []tuple.Element{tuple.Str("cat")}},
		})
		require.NoError(t, err)
	}
	return st, byCategory
}

func countIndexEntries(t *testing.T, ctx context.Context, st *store.RecordStore, indexName string) int {
	t.Helper()
	sub := st.IndexSubspace(indexName)
	begin, end := sub.Range()
	count := 0
	require.NoError(t, st.Database().View(ctx, func(tx kv.Tx) error {
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
	return count
}

func TestBuildIndexesAllExistingRecords(t *testing.T) {
	ctx := context.Background()
	st, idx := setup(t)

	b := NewBuilder(st, idx, "Product", Options{ShardSize: 10})
	res, err := b.Build(ctx)
	require.NoError(t, err)
	require.True(t, res.Done())
	require.Equal(t, 3, res.ShardsTotal) // 25 records / shard size 10 -> 3 shards

	require.NoError(t, idx.SetState(schema.StateReadable))
	require.Equal(t, 25, countIndexEntries(t, ctx, st, "byCategory"))
}

func TestBuildIsIdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	st, idx := setup(t)

	b := NewBuilder(st, idx, "Product", Options{ShardSize: 10})
	_, err := b.Build(ctx)
	require.NoError(t, err)

	// Re-running Build should see every shard already complete and add no
	// duplicate entries.
	res2, err := b.Build(ctx)
	require.NoError(t, err)
	require.Equal(t, res2.ShardsTotal, res2.ShardsCompleted)
	require.Equal(t, 25, countIndexEntries(t, ctx, st, "byCategory"))
}

func TestRebuildClearsIndexAndProgress(t *testing.T) {
	ctx := context.Background()
	st, idx := setup(t)

	b := NewBuilder(st, idx, "Product", Options{ShardSize: 10})
	_, err := b.Build(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, countIndexEntries(t, ctx, st, "byCategory"))

	require.NoError(t, idx.SetState(schema.StateReadable))
	require.NoError(t, b.Rebuild(ctx))
	require.Equal(t, schema.StateWriteOnly, idx.State())
	require.Equal(t, 0, countIndexEntries(t, ctx, st, "byCategory"))

	res, err := b.Build(ctx)
	require.NoError(t, err)
	require.True(t, res.Done())
	require.Equal(t, 25, countIndexEntries(t, ctx, st, "byCategory"))
}

func TestRangeSetEncodeDecodeRoundTrip(t *testing.T) {
	rs := NewRangeSet()
	rs.MarkComplete(1)
	rs.MarkComplete(3)
	data, err := rs.Encode()
	require.NoError(t, err)

	rs2, err := DecodeRangeSet(data)
	require.NoError(t, err)
	require.True(t, rs2.IsComplete(1))
	require.True(t, rs2.IsComplete(3))
	require.False(t, rs2.IsComplete(2))
	require.Equal(t, uint64(2), rs2.CompletedCount())
}
