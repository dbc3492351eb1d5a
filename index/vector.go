package index

import (
	"context"
	"math"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// vectorMaintainer stores each record's vector as a flat WireFixed64-style
// byte blob keyed by primary key, and answers nearest-neighbor queries with
// a brute-force scan. A real ANN engine (HNSW or similar) is explicitly out
// of scope per spec.md §1 non-goals; this package only needs the
// maintainer contract and a fallback physplan.NearestNeighbors can use when
// health.Tracker reports the real engine unhealthy.
//
// idx.Root must evaluate to one combined path per record: a multi-dimension
// vector field is declared as keyexpr.Concat(keyexpr.Field("x"),
// keyexpr.Field("y"), ...), not a bare keyexpr.Field naming a repeated
// field — the latter fans out one path per element, which tupleToVector
// would read as a sequence of 1-dimensional vectors rather than one
// N-dimensional one.
type vectorMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *vectorMaintainer) Kind() schema.IndexKind { return schema.IndexVector }

func (m *vectorMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	if oldRec != nil {
		if err := tx.Clear(ctx, m.sub.Pack(pk)); err != nil {
			return err
		}
	}
	if newRec == nil {
		return nil
	}
	paths, err := keyexpr.Evaluate(m.idx.Root, newRec)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	vec, err := tupleToVector(paths[0])
	if err != nil {
		return err
	}
	return tx.Put(ctx, m.sub.Pack(pk), encodeVector(vec))
}

func tupleToVector(t tuple.Tuple) ([]float64, error) {
	out := make([]float64, len(t))
	for i, el := range t {
		if el.Kind() != tuple.KindDouble && el.Kind() != tuple.KindInt {
			return nil, &TypeMismatchError{Reason: "vector field must be numeric"}
		}
		if el.Kind() == tuple.KindDouble {
			out[i] = el.AsDouble()
		} else {
			out[i] = float64(el.AsInt())
		}
	}
	return out, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		bits := math.Float64bits(f)
		for b := 0; b < 8; b++ {
			buf[i*8+b] = byte(bits >> (8 * b))
		}
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var bits uint64
		for b := 7; b >= 0; b-- {
			bits = bits<<8 | uint64(buf[i*8+b])
		}
		out[i] = math.Float64frombits(bits)
	}
	return out
}

func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ScanNearest performs a brute-force k-nearest-neighbor scan over every
// stored vector, returning up to k (primaryKey, distance) pairs ascending
// by distance to query.
func (m *vectorMaintainer) ScanNearest(ctx context.Context, tx kv.Tx, query []float64, k int) ([]NearestResult, error) {
	begin, end := m.sub.Range()
	c, err := tx.Range(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var results []NearestResult
	for {
		key, val, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		pk, err := m.sub.Unpack(key)
		if err != nil {
			return nil, err
		}
		dist := euclideanDistance(query, decodeVector(val))
		results = append(results, NearestResult{PrimaryKey: pk, Distance: dist})
	}

	// Simple partial selection sort for the top k; result sets in this
	// fallback path are expected to be small (flat scan is itself the
	// fallback of last resort).
	for i := 0; i < len(results) && i < k; i++ {
		minIdx := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[minIdx].Distance {
				minIdx = j
			}
		}
		results[i], results[minIdx] = results[minIdx], results[i]
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// NearestResult is one entry of a nearest-neighbor scan.
type NearestResult struct {
	PrimaryKey tuple.Tuple
	Distance   float64
}
