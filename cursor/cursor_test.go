package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapFilterLimit(t *testing.T) {
	ctx := context.Background()
	src := FromSlice([]Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	})
	mapped := Map(src, func(e Entry) (Entry, bool, error) {
		if string(e.Key) == "b" {
			return Entry{}, false, nil
		}
		return e, true, nil
	})
	out, err := Collect(ctx, mapped)
	require.NoError(t, err)
	require.Len(t, out, 2)

	src2 := FromSlice([]Entry{
		{Key: []byte("a")}, {Key: []byte("b")}, {Key: []byte("c")},
	})
	limited := Limit(src2, 2)
	out2, err := Collect(ctx, limited)
	require.NoError(t, err)
	require.Len(t, out2, 2)
}

func TestFilterCursor(t *testing.T) {
	ctx := context.Background()
	src := FromSlice([]Entry{
		{Key: []byte("a")}, {Key: []byte("bb")}, {Key: []byte("ccc")},
	})
	filtered := Filter(src, func(e Entry) (bool, error) {
		return len(e.Key) > 1, nil
	})
	out, err := Collect(ctx, filtered)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestCollectRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := FromSlice([]Entry{{Key: []byte("a")}})
	_, err := Collect(ctx, src)
	require.Error(t, err)
}
