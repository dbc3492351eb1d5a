package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// countMaintainer keeps one atomic counter per grouping path (the fanout
// path of idx.Root, typically a prefix of grouping fields), incremented on
// insert and decremented on delete without ever reading the counter first
// — the AtomicAdd primitive kv.RwTx exposes exactly for this.
type countMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *countMaintainer) Kind() schema.IndexKind { return schema.IndexCount }

func (m *countMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	if oldRec != nil {
		paths, err := keyexpr.Evaluate(m.idx.Root, oldRec)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := tx.AtomicAdd(ctx, m.sub.Pack(p), -1); err != nil {
				return err
			}
		}
	}
	if newRec != nil {
		paths, err := keyexpr.Evaluate(m.idx.Root, newRec)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := tx.AtomicAdd(ctx, m.sub.Pack(p), 1); err != nil {
				return err
			}
		}
	}
	return nil
}
