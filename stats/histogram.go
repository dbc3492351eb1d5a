// Package stats maintains per-table and per-index statistics the planner
// consults for cost estimation: row counts and equidepth histograms over
// indexed fields. Histogram buckets are kept in a google/btree ordered map
// keyed by each bucket's lower bound, the same ordered-map choice
// kv/memkv already makes for exactly the same reason (cheap range lookups
// by key order).
package stats

import (
	"sort"

	"github.com/fdbrl/recordlayer/tuple"
	"github.com/google/btree"
)

const defaultBucketCount = 32

// Bucket is one equidepth histogram bucket: the half-open value range
// [Lo, Hi), how many sampled rows fell in it, and an estimate of how many
// distinct values it holds.
type Bucket struct {
	Lo, Hi         tuple.Element
	Frequency      int64
	DistinctValues int64
}

type bucketEntry struct {
	lo     tuple.Element
	bucket Bucket
}

func lessBucket(a, b bucketEntry) bool {
	return tuple.Compare(tuple.Of(a.lo), tuple.Of(b.lo)) < 0
}

// Histogram is an equidepth histogram over one field's sampled values.
type Histogram struct {
	buckets *btree.BTreeG[bucketEntry]
	total   int64
}

// BuildEquidepth constructs a Histogram with at most bucketCount buckets
// (defaultBucketCount if <= 0) from sorted sample values, each bucket
// getting approximately the same row count (len(samples)/bucketCount,
// rounded up). samples must already be sorted ascending by tuple.Compare.
func BuildEquidepth(samples []tuple.Element, bucketCount int) *Histogram {
	if bucketCount <= 0 {
		bucketCount = defaultBucketCount
	}
	h := &Histogram{buckets: btree.NewG[bucketEntry](32, lessBucket), total: int64(len(samples))}
	if len(samples) == 0 {
		return h
	}
	perBucket := (len(samples) + bucketCount - 1) / bucketCount
	if perBucket < 1 {
		perBucket = 1
	}
	for i := 0; i < len(samples); i += perBucket {
		end := i + perBucket
		if end > len(samples) {
			end = len(samples)
		}
		slice := samples[i:end]
		distinct := countDistinct(slice)
		var hi tuple.Element
		if end < len(samples) {
			hi = samples[end]
		} else {
			hi = slice[len(slice)-1]
		}
		h.buckets.ReplaceOrInsert(bucketEntry{
			lo: slice[0],
			bucket: Bucket{
				Lo:             slice[0],
				Hi:             hi,
				Frequency:      int64(len(slice)),
				DistinctValues: distinct,
			},
		})
	}
	return h
}

func countDistinct(sorted []tuple.Element) int64 {
	if len(sorted) == 0 {
		return 0
	}
	n := int64(1)
	for i := 1; i < len(sorted); i++ {
		if tuple.Compare(tuple.Of(sorted[i]), tuple.Of(sorted[i-1])) != 0 {
			n++
		}
	}
	return n
}

// EstimateEquality returns an estimated row count for field == value,
// using the bucket value falls in: frequency / distinctValues.
func (h *Histogram) EstimateEquality(value tuple.Element) int64 {
	b, ok := h.bucketFor(value)
	if !ok || b.DistinctValues == 0 {
		return 0
	}
	return b.Frequency / b.DistinctValues
}

// EstimateRange returns an estimated row count for lo <= field < hi,
// summing the full Frequency of every bucket that overlaps the range. The
// two boundary buckets are counted in full, not pro-rated, so the estimate
// can exceed the true count.
func (h *Histogram) EstimateRange(lo, hi tuple.Element, loInf, hiInf bool) int64 {
	var total int64
	h.buckets.Ascend(func(e bucketEntry) bool {
		b := e.bucket
		bLo, bHi := b.Lo, b.Hi
		if !loInf && tuple.Compare(tuple.Of(bHi), tuple.Of(lo)) <= 0 {
			return true
		}
		if !hiInf && tuple.Compare(tuple.Of(bLo), tuple.Of(hi)) >= 0 {
			return false
		}
		total += b.Frequency
		return true
	})
	return total
}

func (h *Histogram) bucketFor(value tuple.Element) (Bucket, bool) {
	var found Bucket
	ok := false
	h.buckets.DescendLessOrEqual(bucketEntry{lo: value}, func(e bucketEntry) bool {
		found = e.bucket
		ok = true
		return false
	})
	if !ok {
		return Bucket{}, false
	}
	return found, true
}

// Buckets returns the histogram's buckets in ascending order, for
// diagnostics/tests.
func (h *Histogram) Buckets() []Bucket {
	out := make([]Bucket, 0, h.buckets.Len())
	h.buckets.Ascend(func(e bucketEntry) bool {
		out = append(out, e.bucket)
		return true
	})
	return out
}

// Total returns the number of samples the histogram was built from.
func (h *Histogram) Total() int64 { return h.total }

// SortElements sorts a copy of els ascending by tuple.Compare, the
// precondition BuildEquidepth requires.
func SortElements(els []tuple.Element) []tuple.Element {
	out := append([]tuple.Element(nil), els...)
	sort.Slice(out, func(i, j int) bool { return tuple.Compare(tuple.Of(out[i]), tuple.Of(out[j])) < 0 })
	return out
}
