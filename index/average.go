package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// averageMaintainer keeps a (sum, count) pair of atomic counters per group,
// the same fixed-point sum representation sumMaintainer uses. The average
// itself is computed on read (averageMaintainer.Average), never stored, so it is
// always consistent with the underlying sum/count.
type averageMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *averageMaintainer) Kind() schema.IndexKind { return schema.IndexAverage }

func (m *averageMaintainer) sumKey(group tuple.Tuple) []byte {
	return m.sub.Pack(append(append(tuple.Tuple{}, group...), tuple.Str("sum")))
}

func (m *averageMaintainer) countKey(group tuple.Tuple) []byte {
	return m.sub.Pack(append(append(tuple.Tuple{}, group...), tuple.Str("count")))
}

func (m *averageMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	apply := func(rec keyexpr.Record, sign int64) error {
		if rec == nil {
			return nil
		}
		paths, err := keyexpr.Evaluate(m.idx.Root, rec)
		if err != nil {
			return err
		}
		for _, p := range paths {
			group, val := groupAndValue(p)
			delta, err := numericDelta(val)
			if err != nil {
				return err
			}
			if err := tx.AtomicAdd(ctx, m.sumKey(group), sign*delta); err != nil {
				return err
			}
			if err := tx.AtomicAdd(ctx, m.countKey(group), sign); err != nil {
				return err
			}
		}
		return nil
	}
	if err := apply(oldRec, -1); err != nil {
		return err
	}
	return apply(newRec, 1)
}

// Average reads the current (sum/fixedPointScale)/count for group, with
// found=false if the group has no entries.
func (m *averageMaintainer) Average(ctx context.Context, tx kv.Tx, group tuple.Tuple) (avg float64, found bool, err error) {
	sumBuf, sumFound, err := tx.Get(ctx, m.sumKey(group))
	if err != nil {
		return 0, false, err
	}
	countBuf, countFound, err := tx.Get(ctx, m.countKey(group))
	if err != nil {
		return 0, false, err
	}
	if !sumFound || !countFound {
		return 0, false, nil
	}
	sum := decodeInt64(sumBuf)
	count := decodeInt64(countBuf)
	if count == 0 {
		return 0, false, nil
	}
	return (float64(sum) / fixedPointScale) / float64(count), true, nil
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	var n uint64
	for i := 7; i >= 0; i-- {
		n = n<<8 | uint64(b[i])
	}
	return int64(n)
}
