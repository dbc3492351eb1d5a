package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// RangeComponentLo and RangeComponentHi name the two sub-subspaces a
// RANGE_COMPONENT index splits into, exported so planner/physplan can
// address them without reaching into this package's internals.
const (
	RangeComponentLo = "lo"
	RangeComponentHi = "hi"
)

// rangeComponentMaintainer auto-generates a paired lower-bound/upper-bound
// VALUE index for a Range<T> field: one entry under the "lo" sub-prefix
// keyed by the field's lower bound, one under "hi" keyed by its upper
// bound, both suffixed with the primary key. physplan's overlaps candidate
// (spec.md §4.6/§4.8) scans the "lo" side up to the query's upper edge and
// the "hi" side from the query's lower edge, intersecting the two to bound
// an overlap query before touching record data.
type rangeComponentMaintainer struct {
	idx    *schema.Index
	sub    subspace.Subspace
	loRoot keyexpr.Expr
	hiRoot keyexpr.Expr
}

func newRangeComponentMaintainer(idx *schema.Index, sub subspace.Subspace) *rangeComponentMaintainer {
	fieldName := idx.Root.FieldName()
	return &rangeComponentMaintainer{
		idx:    idx,
		sub:    sub,
		loRoot: keyexpr.RangeExpr(fieldName, keyexpr.LowerBound, idx.Root.Boundary()),
		hiRoot: keyexpr.RangeExpr(fieldName, keyexpr.UpperBound, idx.Root.Boundary()),
	}
}

func (m *rangeComponentMaintainer) Kind() schema.IndexKind { return schema.IndexRangeComponent }

func (m *rangeComponentMaintainer) loSub() subspace.Subspace {
	return m.sub.Sub(tuple.Str(RangeComponentLo))
}
func (m *rangeComponentMaintainer) hiSub() subspace.Subspace {
	return m.sub.Sub(tuple.Str(RangeComponentHi))
}

func (m *rangeComponentMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	if err := m.updateSide(ctx, tx, m.loSub(), m.loRoot, oldRec, newRec, pk); err != nil {
		return err
	}
	return m.updateSide(ctx, tx, m.hiSub(), m.hiRoot, oldRec, newRec, pk)
}

func (m *rangeComponentMaintainer) updateSide(ctx context.Context, tx kv.RwTx, sub subspace.Subspace, root keyexpr.Expr, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	removed, added, err := diffPaths(root, oldRec, newRec)
	if err != nil {
		return err
	}
	for _, p := range removed {
		if err := tx.Clear(ctx, entryKey(sub, p, pk)); err != nil {
			return err
		}
	}
	for _, p := range added {
		if err := tx.Put(ctx, entryKey(sub, p, pk), nil); err != nil {
			return err
		}
	}
	return nil
}
