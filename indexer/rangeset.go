package indexer

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// RangeSet tracks which of a build's fixed shard IDs have finished
// indexing, backed by a roaring64 bitmap the same way aggregator_v3.go
// tracks completed block ranges. Shard boundaries themselves are
// recomputed at the start of every Build call (see Builder.shardBoundaries)
// rather than persisted — only the completion bitmap survives a restart,
// keyed by the shard's position in that (deterministic, ascending-pk)
// ordering.
type RangeSet struct {
	bitmap *roaring64.Bitmap
}

// NewRangeSet creates an empty set (nothing complete).
func NewRangeSet() *RangeSet {
	return &RangeSet{bitmap: roaring64.New()}
}

// DecodeRangeSet restores a RangeSet from bytes written by Encode. An empty
// or nil buffer decodes to an empty set.
func DecodeRangeSet(data []byte) (*RangeSet, error) {
	bm := roaring64.New()
	if len(data) > 0 {
		if err := bm.UnmarshalBinary(data); err != nil {
			return nil, err
		}
	}
	return &RangeSet{bitmap: bm}, nil
}

// Encode serializes the set for storage.
func (r *RangeSet) Encode() ([]byte, error) {
	return r.bitmap.MarshalBinary()
}

func (r *RangeSet) MarkComplete(shardID uint64)    { r.bitmap.Add(shardID) }
func (r *RangeSet) IsComplete(shardID uint64) bool { return r.bitmap.Contains(shardID) }
func (r *RangeSet) CompletedCount() uint64         { return r.bitmap.GetCardinality() }

// Reset drops every recorded completion, as if the set were freshly built.
func (r *RangeSet) Reset() { r.bitmap = roaring64.New() }
