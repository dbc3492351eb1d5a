package index

import (
	"context"
	"math"

	"github.com/fdbrl/recordlayer/internal/numeric"
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// sumMaintainer roots idx.Root on Concat(groupFields..., summedField): every
// fanout path's last element is the numeric value to sum, every element
// before it is the grouping key. One atomic fixed-point accumulator
// (int64, scaled by 1e6 for fractional values) is kept per group.
type sumMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

const fixedPointScale = 1_000_000

func (m *sumMaintainer) Kind() schema.IndexKind { return schema.IndexSum }

// numericDelta scales el into the fixed-point accumulator unit, rejecting a
// value whose scaled magnitude would overflow the int64 atomic counter
// rather than silently wrapping it.
func numericDelta(el tuple.Element) (int64, error) {
	switch el.Kind() {
	case tuple.KindInt:
		v := el.AsInt()
		neg := v < 0
		mag := uint64(v)
		if neg {
			mag = uint64(-v) // two's-complement wraparound handles MinInt64 correctly
		}
		scaled, overflow := numeric.SafeMul(mag, fixedPointScale)
		if overflow || scaled > uint64(numeric.MaxInt64) {
			return 0, &TypeMismatchError{Reason: "SUM/AVERAGE value overflows the fixed-point accumulator"}
		}
		if neg {
			return -int64(scaled), nil
		}
		return int64(scaled), nil
	case tuple.KindDouble:
		return int64(math.Round(el.AsDouble() * fixedPointScale)), nil
	default:
		return 0, &TypeMismatchError{Reason: "SUM/AVERAGE field must be numeric"}
	}
}

// TypeMismatchError is returned when an index maintainer is handed a
// non-numeric field where a numeric one is required.
type TypeMismatchError struct {
	Reason string
}

func (e *TypeMismatchError) Error() string { return "index: " + e.Reason }

func groupAndValue(p tuple.Tuple) (tuple.Tuple, tuple.Element) {
	return p[:len(p)-1], p[len(p)-1]
}

func (m *sumMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	if oldRec != nil {
		paths, err := keyexpr.Evaluate(m.idx.Root, oldRec)
		if err != nil {
			return err
		}
		for _, p := range paths {
			group, val := groupAndValue(p)
			delta, err := numericDelta(val)
			if err != nil {
				return err
			}
			if err := tx.AtomicAdd(ctx, m.sub.Pack(group), -delta); err != nil {
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
			group, val := groupAndValue(p)
			delta, err := numericDelta(val)
			if err != nil {
				return err
			}
			if err := tx.AtomicAdd(ctx, m.sub.Pack(group), delta); err != nil {
				return err
			}
		}
	}
	return nil
}
