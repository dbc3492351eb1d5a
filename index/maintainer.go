// Package index implements one maintainer per index kind, each responsible
// for turning a record update (old value, new value, primary key) into the
// corresponding index entry mutations inside the caller's transaction. The
// maintainer family follows the teacher's Domain/History/InvertedIndex
// pattern (fenghaojiang-erigon-lib/state/aggregator_v3.go,
// domain_committed.go): one concrete type per index flavor, dispatched by a
// type switch rather than an open interface hierarchy, each diffing
// old-vs-new under the caller's transaction.
package index

import (
	"context"
	"fmt"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// Maintainer updates one index's entries in response to a record changing
// from oldRec to newRec (either may be nil: nil oldRec means insert, nil
// newRec means delete) under primary key pk.
type Maintainer interface {
	Kind() schema.IndexKind
	Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error
}

// UniqueConstraintViolation is returned by a UNIQUE index maintainer when a
// new entry's indexed value already maps to a different primary key.
type UniqueConstraintViolation struct {
	Index   string
	Primary tuple.Tuple
	Other   tuple.Tuple
}

func (e *UniqueConstraintViolation) Error() string {
	return fmt.Sprintf("index %q: unique constraint violated: primary key %v conflicts with existing %v", e.Index, e.Primary, e.Other)
}

// NewMaintainer dispatches on idx.Kind to construct the concrete maintainer
// for idx, rooted at indexSub (the subspace this index's entries live
// under, e.g. S/I/{indexName}).
func NewMaintainer(idx *schema.Index, indexSub subspace.Subspace) (Maintainer, error) {
	switch idx.Kind {
	case schema.IndexValue:
		return &valueMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexUnique:
		return &uniqueMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexCount:
		return &countMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexSum:
		return &sumMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexMin:
		return &extremumMaintainer{idx: idx, sub: indexSub, wantMax: false}, nil
	case schema.IndexMax:
		return &extremumMaintainer{idx: idx, sub: indexSub, wantMax: true}, nil
	case schema.IndexAverage:
		return &averageMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexVersion:
		return &versionMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexRank:
		return newRankMaintainer(idx, indexSub), nil
	case schema.IndexVector:
		return &vectorMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexSpatial:
		return &spatialMaintainer{idx: idx, sub: indexSub}, nil
	case schema.IndexRangeComponent:
		return newRangeComponentMaintainer(idx, indexSub), nil
	default:
		return nil, fmt.Errorf("index: unknown index kind %v", idx.Kind)
	}
}

// entryKey builds the byte key for one fanout path: the index subspace,
// the indexed tuple, then the primary key appended so distinct records with
// identical indexed values still get distinct entries (VALUE index
// convention, per spec.md §4.3).
func entryKey(sub subspace.Subspace, indexed tuple.Tuple, pk tuple.Tuple) []byte {
	full := make(tuple.Tuple, 0, len(indexed)+len(pk))
	full = append(full, indexed...)
	full = append(full, pk...)
	return sub.Pack(full)
}

// diffPaths evaluates root against oldRec/newRec and returns the fanout
// paths to remove (present in old, absent in new) and to add (present in
// new, absent in old), comparing paths by their packed byte encoding.
func diffPaths(root keyexpr.Expr, oldRec, newRec keyexpr.Record) (removed, added []tuple.Tuple, err error) {
	var oldPaths, newPaths []tuple.Tuple
	if oldRec != nil {
		oldPaths, err = keyexpr.Evaluate(root, oldRec)
		if err != nil {
			return nil, nil, err
		}
	}
	if newRec != nil {
		newPaths, err = keyexpr.Evaluate(root, newRec)
		if err != nil {
			return nil, nil, err
		}
	}

	oldSet := make(map[string]tuple.Tuple, len(oldPaths))
	for _, p := range oldPaths {
		oldSet[string(tuple.Pack(p))] = p
	}
	newSet := make(map[string]tuple.Tuple, len(newPaths))
	for _, p := range newPaths {
		newSet[string(tuple.Pack(p))] = p
	}

	for k, p := range oldSet {
		if _, ok := newSet[k]; !ok {
			removed = append(removed, p)
		}
	}
	for k, p := range newSet {
		if _, ok := oldSet[k]; !ok {
			added = append(added, p)
		}
	}
	return removed, added, nil
}
