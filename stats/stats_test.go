package stats

import (
	"testing"

	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

func TestBuildEquidepthAndEstimateEquality(t *testing.T) {
	var samples []tuple.Element
	for i := 0; i < 100; i++ {
		samples = append(samples, tuple.Int(int64(i/10))) // 10 distinct values, 10 each
	}
	sorted := SortElements(samples)
	h := BuildEquidepth(sorted, 10)
	require.Equal(t, int64(100), h.Total())

	est := h.EstimateEquality(tuple.Int(3))
	require.Greater(t, est, int64(0))
}

func TestEstimateRange(t *testing.T) {
	var samples []tuple.Element
	for i := 0; i < 50; i++ {
		samples = append(samples, tuple.Int(int64(i)))
	}
	h := BuildEquidepth(samples, 5)
	est := h.EstimateRange(tuple.Int(10), tuple.Int(20), false, false)
	require.Greater(t, est, int64(0))
	require.LessOrEqual(t, est, int64(50))
}

func TestTableStatsAndStore(t *testing.T) {
	store := NewStore()
	ts := store.Table("Product")
	ts.SetRowCount(42)
	require.Equal(t, int64(42), store.Table("Product").RowCount())

	h := BuildEquidepth(SortElements([]tuple.Element{tuple.Int(1), tuple.Int(2)}), 2)
	ts.SetHistogram("byCategory", h)
	got, ok := ts.Histogram("byCategory")
	require.True(t, ok)
	require.Equal(t, int64(2), got.Total())

	_, ok = ts.Histogram("nonexistent")
	require.False(t, ok)
}
