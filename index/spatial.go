package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// spatialMaintainer indexes a record's (lat, lon) field as a geohash
// string, letting range scans over the geohash prefix approximate a
// bounding-box query. A real R-tree/quadtree engine is out of scope per
// spec.md §1 non-goals; this is the reference fallback physplan falls back
// to.
type spatialMaintainer struct {
	idx       *schema.Index
	sub       subspace.Subspace
	precision int
}

const defaultGeohashPrecision = 9

func (m *spatialMaintainer) Kind() schema.IndexKind { return schema.IndexSpatial }

func (m *spatialMaintainer) resolvedPrecision() int {
	if m.idx.Options != nil {
		if p, ok := m.idx.Options["precision"].(int); ok && p > 0 {
			return p
		}
	}
	return defaultGeohashPrecision
}

func (m *spatialMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	removed, added, err := diffPaths(m.idx.Root, oldRec, newRec)
	if err != nil {
		return err
	}
	prec := m.resolvedPrecision()
	for _, p := range removed {
		hash, err := geohashOf(p, prec)
		if err != nil {
			return err
		}
		if err := tx.Clear(ctx, entryKey(m.sub, tuple.Of(tuple.Str(hash)), pk)); err != nil {
			return err
		}
	}
	for _, p := range added {
		hash, err := geohashOf(p, prec)
		if err != nil {
			return err
		}
		if err := tx.Put(ctx, entryKey(m.sub, tuple.Of(tuple.Str(hash)), pk), nil); err != nil {
			return err
		}
	}
	return nil
}

func geohashOf(p tuple.Tuple, precision int) (string, error) {
	if len(p) != 2 || p[0].Kind() != tuple.KindDouble || p[1].Kind() != tuple.KindDouble {
		return "", &TypeMismatchError{Reason: "spatial field must evaluate to (lat, lon) doubles"}
	}
	return encodeGeohash(p[0].AsDouble(), p[1].AsDouble(), precision), nil
}

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// encodeGeohash implements the standard interleaved-bit geohash algorithm.
func encodeGeohash(lat, lon float64, precision int) string {
	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}
	out := make([]byte, 0, precision)
	var bit, ch int
	evenBit := true
	for len(out) < precision {
		if evenBit {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon >= mid {
				ch = ch*2 + 1
				lonRange[0] = mid
			} else {
				ch *= 2
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch = ch*2 + 1
				latRange[0] = mid
			} else {
				ch *= 2
				latRange[1] = mid
			}
		}
		evenBit = !evenBit
		bit++
		if bit == 5 {
			out = append(out, base32[ch])
			bit, ch = 0, 0
		}
	}
	return string(out)
}

// GeohashPrefixRange returns the [begin, end) byte range covering every
// geohash entry sharing prefix, for a bounding-box approximation scan. The
// full hash is packed as a null-terminated tuple string element, so a
// Subspace keyed on the partial prefix wouldn't byte-prefix-match a longer
// hash sharing it; base32 geohash characters never need 0x00-stuffing, so
// stripping the packed form's terminator byte gives the true shared prefix.
func (m *spatialMaintainer) GeohashPrefixRange(prefix string) (begin, end []byte) {
	full := m.sub.Pack(tuple.Of(tuple.Str(prefix)))
	begin = full[:len(full)-1]
	end = append(append([]byte(nil), begin...), 0xFF)
	return begin, end
}
