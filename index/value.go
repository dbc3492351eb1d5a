package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// valueMaintainer is the plain secondary index: one entry per fanout path,
// key = indexed value || primary key, empty value.
type valueMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *valueMaintainer) Kind() schema.IndexKind { return schema.IndexValue }

func (m *valueMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	removed, added, err := diffPaths(m.idx.Root, oldRec, newRec)
	if err != nil {
		return err
	}
	for _, p := range removed {
		if err := tx.Clear(ctx, entryKey(m.sub, p, pk)); err != nil {
			return err
		}
	}
	for _, p := range added {
		if err := tx.Put(ctx, entryKey(m.sub, p, pk), nil); err != nil {
			return err
		}
	}
	return nil
}
