package subspace

import (
	"bytes"
	"testing"

	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack(t *testing.T) {
	s := FromString("S/R/Product")
	key := s.Pack(tuple.Of(tuple.Int(42)))
	require.True(t, bytes.HasPrefix(key, []byte("S/R/Product")))

	got, err := s.Unpack(key)
	require.NoError(t, err)
	require.Equal(t, int64(42), got[0].AsInt())
}

func TestRangeCoversAllKeys(t *testing.T) {
	s := FromString("S/I/byCategory")
	begin, end := s.Range()
	k1 := s.Pack(tuple.Of(tuple.Str("Electronics")))
	k2 := s.Pack(tuple.Of(tuple.Str("\xff\xff")))
	require.True(t, bytes.Compare(begin, k1) <= 0)
	require.True(t, bytes.Compare(k1, end) < 0)
	require.True(t, bytes.Compare(k2, end) < 0)
}

func TestSubComposition(t *testing.T) {
	root := FromString("S")
	entities := root.Sub(tuple.Str("R"))
	product := entities.Sub(tuple.Str("Product"))
	require.True(t, bytes.HasPrefix(product.Bytes(), entities.Bytes()))
	require.True(t, bytes.HasPrefix(entities.Bytes(), root.Bytes()))
}

func TestUnpackOutsideSubspace(t *testing.T) {
	s := FromString("S/I/a")
	_, err := s.Unpack([]byte("S/I/b/x"))
	require.Error(t, err)
}
