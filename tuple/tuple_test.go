package tuple

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, tup Tuple) Tuple {
	t.Helper()
	packed := Pack(tup)
	got, err := Unpack(packed)
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	cases := []Tuple{
		Of(Null()),
		Of(Bool(true), Bool(false)),
		Of(Int(0), Int(1), Int(-1), Int(math.MaxInt64), Int(math.MinInt64)),
		Of(Double(0), Double(-0.0), Double(3.25), Double(-3.25), Double(math.Inf(1)), Double(math.Inf(-1))),
		Of(Str(""), Str("hello"), Str("with\x00null")),
		Of(Bytes(nil), Bytes([]byte{0x00, 0x01, 0xFF}), Bytes([]byte{0x00, 0x00})),
		Of(UUIDElem(UUID{1, 2, 3})),
		Of(VersionstampElem(Versionstamp{TxnVersion: [10]byte{1, 2, 3}, UserVer: 7})),
		Of(Nested(Of(Int(1), Str("x"), Null(), Nested(Of(Bool(true)))))),
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		require.Equal(t, len(c), len(got))
		for i := range c {
			require.Equal(t, c[i].Kind(), got[i].Kind())
			switch c[i].Kind() {
			case KindInt:
				require.Equal(t, c[i].AsInt(), got[i].AsInt())
			case KindString:
				require.Equal(t, c[i].AsString(), got[i].AsString())
			case KindBytes:
				require.True(t, bytes.Equal(c[i].AsBytes(), got[i].AsBytes()))
			case KindBool:
				require.Equal(t, c[i].AsBool(), got[i].AsBool())
			case KindUUID:
				require.Equal(t, c[i].AsUUID(), got[i].AsUUID())
			}
		}
	}
}

func TestOrderPreservation(t *testing.T) {
	ints := []int64{math.MinInt64, -1 << 40, -256, -1, 0, 1, 255, 256, 1 << 40, math.MaxInt64}
	for i := range ints {
		for j := range ints {
			a := Of(Int(ints[i]))
			b := Of(Int(ints[j]))
			wantCmp := Compare(a, b)
			gotCmp := bytes.Compare(Pack(a), Pack(b))
			require.Equal(t, sign(wantCmp), sign(gotCmp), "ints %d vs %d", ints[i], ints[j])
		}
	}

	strs := []string{"", "a", "aa", "ab", "b", "\x00", "\x00\x00"}
	for i := range strs {
		for j := range strs {
			a := Of(Str(strs[i]))
			b := Of(Str(strs[j]))
			require.Equal(t, sign(Compare(a, b)), sign(bytes.Compare(Pack(a), Pack(b))))
		}
	}

	// cross-type: null < bytes < string < tuple < int < double < bool < uuid < versionstamp
	crossType := []Tuple{
		Of(Null()),
		Of(Bytes([]byte{0})),
		Of(Str("z")),
		Of(Nested(Of(Int(999)))),
		Of(Int(-999)),
		Of(Double(-999)),
		Of(Bool(false)),
		Of(UUIDElem(UUID{})),
		Of(VersionstampElem(Versionstamp{})),
	}
	for i := 0; i < len(crossType)-1; i++ {
		require.Less(t, bytes.Compare(Pack(crossType[i]), Pack(crossType[i+1])), 0)
	}
}

func TestPrefixProperty(t *testing.T) {
	full := Of(Int(1), Str("middle"), Bytes([]byte{1, 2, 3}), Bool(true))
	for n := 0; n <= len(full); n++ {
		prefix := full[:n]
		require.True(t, bytes.HasPrefix(Pack(full), Pack(prefix)))
	}
}

func TestCorruptTuple(t *testing.T) {
	_, err := Unpack([]byte{0xFE})
	require.Error(t, err)
	var cte *CorruptTupleError
	require.ErrorAs(t, err, &cte)

	_, err = Unpack([]byte{tagString, 'a'}) // missing terminator
	require.Error(t, err)

	_, err = Unpack([]byte{tagTuple, tagIntZero}) // missing nested terminator
	require.Error(t, err)

	_, err = Unpack(append(Pack(Of(Int(1))), 0xAB)) // trailing garbage
	require.Error(t, err)
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}
