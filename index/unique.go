package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// uniqueMaintainer stores one entry per indexed value (no primary key in
// the key), whose value is the owning primary key. A second record
// producing the same indexed value is rejected with
// UniqueConstraintViolation rather than silently overwriting the mapping.
type uniqueMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *uniqueMaintainer) Kind() schema.IndexKind { return schema.IndexUnique }

func (m *uniqueMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	removed, added, err := diffPaths(m.idx.Root, oldRec, newRec)
	if err != nil {
		return err
	}
	for _, p := range removed {
		if err := tx.Clear(ctx, m.sub.Pack(p)); err != nil {
			return err
		}
	}
	for _, p := range added {
		key := m.sub.Pack(p)
		existing, found, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			other, uerr := tuple.Unpack(existing)
			if uerr != nil {
				return uerr
			}
			if tuple.Compare(other, pk) != 0 {
				return &UniqueConstraintViolation{Index: m.idx.Name, Primary: pk, Other: other}
			}
			continue
		}
		if err := tx.Put(ctx, key, tuple.Pack(pk)); err != nil {
			return err
		}
	}
	return nil
}
