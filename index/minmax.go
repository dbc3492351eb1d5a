package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// extremumMaintainer keeps, per group, the set of (value, primaryKey)
// entries ordered so the first (wantMax: last) entry in the group's range
// is the extremum — a plain VALUE-style ordered index read with a
// single-entry range scan, requiring no recomputation on insert or delete:
// after a delete of the current extremum, the next entry in the group's
// range is the new extreme. Extremum performs that single-entry range read.
type extremumMaintainer struct {
	idx     *schema.Index
	sub     subspace.Subspace
	wantMax bool
}

func (m *extremumMaintainer) Kind() schema.IndexKind {
	if m.wantMax {
		return schema.IndexMax
	}
	return schema.IndexMin
}

func (m *extremumMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
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

// Extremum reads the current min (or max, per wantMax) entry under group's
// prefix from tx, returning its value element and primary key. found is
// false if the group is empty.
func (m *extremumMaintainer) Extremum(ctx context.Context, tx kv.Tx, group tuple.Tuple) (value tuple.Element, pk tuple.Tuple, found bool, err error) {
	groupSub := m.sub
	begin, end := groupSub.Sub(asElements(group)...).Range()
	var c kv.Cursor
	if m.wantMax {
		c, err = tx.RangeReverse(ctx, begin, end)
	} else {
		c, err = tx.Range(ctx, begin, end)
	}
	if err != nil {
		return value, nil, false, err
	}
	defer c.Close()
	k, _, err := c.Next(ctx)
	if err != nil {
		return value, nil, false, err
	}
	if k == nil {
		return value, nil, false, nil
	}
	full, err := groupSub.Unpack(k)
	if err != nil {
		return value, nil, false, err
	}
	if len(full) < len(group)+1 {
		return value, nil, false, nil
	}
	return full[len(group)], full[len(group)+1:], true, nil
}

func asElements(t tuple.Tuple) []tuple.Element {
	out := make([]tuple.Element, len(t))
	copy(out, t)
	return out
}
