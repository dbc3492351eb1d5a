package index

import (
	"context"

	"github.com/fdbrl/recordlayer/index/rankset"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// rankMaintainer persists entries exactly like a VALUE index (key =
// indexed value || primary key, the KV store's own ordering keeps them
// sorted) and additionally offers Rank/Nth helpers that either scan the KV
// range directly (single query) or materialize the whole index into a
// rankset.Set for repeated order-statistics queries within one plan.
type rankMaintainer struct {
	*valueMaintainer
}

func newRankMaintainer(idx *schema.Index, sub subspace.Subspace) *rankMaintainer {
	return &rankMaintainer{valueMaintainer: &valueMaintainer{idx: idx, sub: sub}}
}

func (m *rankMaintainer) Kind() schema.IndexKind { return schema.IndexRank }

// Rank returns the 0-based count of entries strictly preceding value's
// first entry in the index, scanning the KV range directly.
func (m *rankMaintainer) Rank(ctx context.Context, tx kv.Tx, value tuple.Tuple) (int, error) {
	begin, _ := m.sub.Range()
	target := m.sub.Pack(value)
	c, err := tx.Range(ctx, begin, target)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	count := 0
	for {
		k, _, err := c.Next(ctx)
		if err != nil {
			return 0, err
		}
		if k == nil {
			break
		}
		count++
	}
	return count, nil
}

// LoadSet materializes every entry under this index into an in-memory
// rankset.Set, for plans that need several Rank/Nth calls back to back.
func (m *rankMaintainer) LoadSet(ctx context.Context, tx kv.Tx) (*rankset.Set, error) {
	begin, end := m.sub.Range()
	c, err := tx.Range(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	set := rankset.New()
	for {
		k, _, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if k == nil {
			break
		}
		t, err := m.sub.Unpack(k)
		if err != nil {
			return nil, err
		}
		set.Insert(t)
	}
	return set, nil
}
