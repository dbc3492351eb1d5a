package index

import (
	"context"
	"testing"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/kv/memkv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	typ    string
	fields map[string]keyexpr.FieldValue
}

func (r fakeRecord) RecordType() string { return r.typ }
func (r fakeRecord) Field(name string) (keyexpr.FieldValue, bool) {
	fv, ok := r.fields[name]
	return fv, ok
}

func productRec(category string) fakeRecord {
	return fakeRecord{typ: "Product", fields: map[string]keyexpr.FieldValue{
		"category": {Name: "category", Elements: []tuple.Element{tuple.Str(category)}},
	}}
}

func TestValueMaintainerInsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/byCategory")
	idx := schema.NewIndex("byCategory", schema.IndexValue, keyexpr.Field("category"), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)

	pk := tuple.Of(tuple.Int(1))

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, productRec("Electronics"), pk)
	}))

	countEntries := func() int {
		n := 0
		require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
			begin, end := sub.Range()
			c, err := tx.Range(ctx, begin, end)
			require.NoError(t, err)
			defer c.Close()
			for {
				k, _, err := c.Next(ctx)
				require.NoError(t, err)
				if k == nil {
					break
				}
				n++
			}
			return nil
		}))
		return n
	}
	require.Equal(t, 1, countEntries())

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, productRec("Electronics"), productRec("Books"), pk)
	}))
	require.Equal(t, 1, countEntries())

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, productRec("Books"), nil, pk)
	}))
	require.Equal(t, 0, countEntries())
}

func TestUniqueMaintainerRejectsConflict(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/byEmail")
	idx := schema.NewIndex("byEmail", schema.IndexUnique, keyexpr.Field("email"), []string{"User"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)

	rec := func(email string) fakeRecord {
		return fakeRecord{typ: "User", fields: map[string]keyexpr.FieldValue{
			"email": {Name: "email", Elements: []tuple.Element{tuple.Str(email)}},
		}}
	}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("a@x.com"), tuple.Of(tuple.Int(1)))
	}))

	err = db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("a@x.com"), tuple.Of(tuple.Int(2)))
	})
	require.Error(t, err)
	var violation *UniqueConstraintViolation
	require.ErrorAs(t, err, &violation)
}

func TestCountMaintainer(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/countByCategory")
	idx := schema.NewIndex("countByCategory", schema.IndexCount, keyexpr.Field("category"), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pk := tuple.Of(tuple.Int(int64(i)))
		require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
			return m.Update(ctx, tx, nil, productRec("Electronics"), pk)
		}))
	}

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		v, found, err := tx.Get(ctx, sub.Pack(tuple.Of(tuple.Str("Electronics"))))
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, v, 8)
		return nil
	}))
}

func TestSumMaintainer(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/sumByCategory")
	idx := schema.NewIndex("sumByCategory", schema.IndexSum,
		keyexpr.Concat(keyexpr.Field("category"), keyexpr.Field("price")), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)

	rec := func(cat string, price int64) fakeRecord {
		return fakeRecord{typ: "Product", fields: map[string]keyexpr.FieldValue{
			"category": {Name: "category", Elements: []tuple.Element{tuple.Str(cat)}},
			"price":    {Name: "price", Elements: []tuple.Element{tuple.Int(price)}},
		}}
	}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("Electronics", 100), tuple.Of(tuple.Int(1)))
	}))
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("Electronics", 50), tuple.Of(tuple.Int(2)))
	}))

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		v, found, err := tx.Get(ctx, sub.Pack(tuple.Of(tuple.Str("Electronics"))))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(150*fixedPointScale), decodeInt64(v))
		return nil
	}))
}

func TestAverageMaintainer(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/avgByCategory")
	idx := schema.NewIndex("avgByCategory", schema.IndexAverage,
		keyexpr.Concat(keyexpr.Field("category"), keyexpr.Field("price")), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)
	am := m.(*averageMaintainer)

	rec := func(cat string, price int64) fakeRecord {
		return fakeRecord{typ: "Product", fields: map[string]keyexpr.FieldValue{
			"category": {Name: "category", Elements: []tuple.Element{tuple.Str(cat)}},
			"price":    {Name: "price", Elements: []tuple.Element{tuple.Int(price)}},
		}}
	}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("Electronics", 100), tuple.Of(tuple.Int(1)))
	}))
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec("Electronics", 50), tuple.Of(tuple.Int(2)))
	}))

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		avg, found, err := am.Average(ctx, tx, tuple.Of(tuple.Str("Electronics")))
		require.NoError(t, err)
		require.True(t, found)
		require.InDelta(t, 75.0, avg, 0.0001)
		return nil
	}))

	// Removing one entry (update from price 100 -> nil) drops it back to a
	// single (50) contribution.
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, rec("Electronics", 100), nil, tuple.Of(tuple.Int(1)))
	}))
	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		avg, found, err := am.Average(ctx, tx, tuple.Of(tuple.Str("Electronics")))
		require.NoError(t, err)
		require.True(t, found)
		require.InDelta(t, 50.0, avg, 0.0001)
		return nil
	}))
}

func TestExtremumMaintainerMinMax(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/maxPriceByCategory")
	idx := schema.NewIndex("maxPriceByCategory", schema.IndexMax,
		keyexpr.Concat(keyexpr.Field("category"), keyexpr.Field("price")), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)
	em := m.(*extremumMaintainer)
	require.Equal(t, schema.IndexMax, em.Kind())

	rec := func(cat string, price int64) fakeRecord {
		return fakeRecord{typ: "Product", fields: map[string]keyexpr.FieldValue{
			"category": {Name: "category", Elements: []tuple.Element{tuple.Str(cat)}},
			"price":    {Name: "price", Elements: []tuple.Element{tuple.Int(price)}},
		}}
	}

	prices := []int64{100, 250, 50}
	for i, price := range prices {
		pk := tuple.Of(tuple.Int(int64(i + 1)))
		require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
			return m.Update(ctx, tx, nil, rec("Electronics", price), pk)
		}))
	}

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		val, pk, found, err := em.Extremum(ctx, tx, tuple.Of(tuple.Str("Electronics")))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(250), val.AsInt())
		require.Equal(t, int64(2), pk[0].AsInt())
		return nil
	}))

	// Removing the current max leaves the next-highest entry in its place.
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, rec("Electronics", 250), nil, tuple.Of(tuple.Int(2)))
	}))
	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		val, pk, found, err := em.Extremum(ctx, tx, tuple.Of(tuple.Str("Electronics")))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(100), val.AsInt())
		require.Equal(t, int64(1), pk[0].AsInt())
		return nil
	}))
}

func TestVersionMaintainerOverwritesAndClears(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/version")
	idx := schema.NewIndex("version", schema.IndexVersion, keyexpr.Field("id"), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)

	countEntries := func() int {
		n := 0
		require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
			begin, end := sub.Range()
			c, err := tx.Range(ctx, begin, end)
			require.NoError(t, err)
			defer c.Close()
			for {
				k, _, err := c.Next(ctx)
				require.NoError(t, err)
				if k == nil {
					break
				}
				n++
			}
			return nil
		}))
		return n
	}

	for i := 0; i < 3; i++ {
		pk := tuple.Of(tuple.Int(int64(i)))
		require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
			return m.Update(ctx, tx, nil, productRec("Electronics"), pk)
		}))
	}
	// 3 version entries + 1 shared counter entry.
	require.Equal(t, 4, countEntries())

	// Updating an existing pk overwrites its single entry rather than
	// appending a second one.
	pk0 := tuple.Of(tuple.Int(int64(0)))
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, productRec("Electronics"), productRec("Toys"), pk0)
	}))
	require.Equal(t, 4, countEntries())

	// Deleting a pk (nil newRec) clears its entry.
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, productRec("Electronics"), nil, pk0)
	}))
	require.Equal(t, 3, countEntries())
}

func TestRankMaintainerRankAndLoadSet(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/rankByPrice")
	idx := schema.NewIndex("rankByPrice", schema.IndexRank, keyexpr.Field("price"), []string{"Product"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)
	rm := m.(*rankMaintainer)
	require.Equal(t, schema.IndexRank, rm.Kind())

	rec := func(price int64) fakeRecord {
		return fakeRecord{typ: "Product", fields: map[string]keyexpr.FieldValue{
			"price": {Name: "price", Elements: []tuple.Element{tuple.Int(price)}},
		}}
	}

	for i, price := range []int64{30, 10, 20} {
		pk := tuple.Of(tuple.Int(int64(i)))
		require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
			return m.Update(ctx, tx, nil, rec(price), pk)
		}))
	}

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		rank, err := rm.Rank(ctx, tx, tuple.Of(tuple.Int(20)))
		require.NoError(t, err)
		require.Equal(t, 1, rank)

		set, err := rm.LoadSet(ctx, tx)
		require.NoError(t, err)
		require.Equal(t, 3, set.Len())
		nth, ok := set.Nth(0)
		require.True(t, ok)
		require.Equal(t, int64(10), nth[0].AsInt())
		return nil
	}))
}

func TestRangeComponentMaintainerSplitsLoHi(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/periodRange")
	idx := schema.NewIndex("periodRange", schema.IndexRangeComponent,
		keyexpr.RangeExpr("period", keyexpr.LowerBound, keyexpr.HalfOpen), []string{"Booking"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)
	rcm := m.(*rangeComponentMaintainer)

	rec := fakeRecord{typ: "Booking", fields: map[string]keyexpr.FieldValue{
		"period": {
			Name:    "period",
			IsRange: true,
			Lower:   keyexpr.Bound{Value: tuple.Int(10)},
			Upper:   keyexpr.Bound{Value: tuple.Int(20)},
		},
	}}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec, tuple.Of(tuple.Int(1)))
	}))

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		loBegin, loEnd := rcm.loSub().Range()
		c, err := tx.Range(ctx, loBegin, loEnd)
		require.NoError(t, err)
		defer c.Close()
		k, _, err := c.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, k)
		full, err := rcm.loSub().Unpack(k)
		require.NoError(t, err)
		require.Equal(t, int64(10), full[0].AsInt())
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		hiBegin, hiEnd := rcm.hiSub().Range()
		c, err := tx.Range(ctx, hiBegin, hiEnd)
		require.NoError(t, err)
		defer c.Close()
		k, _, err := c.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, k)
		full, err := rcm.hiSub().Unpack(k)
		require.NoError(t, err)
		require.Equal(t, int64(20), full[0].AsInt())
		return nil
	}))
}

func TestSpatialMaintainerGeohashPrefixScan(t *testing.T) {
	ctx := context.Background()
	db := memkv.New()
	sub := subspace.FromString("S/I/byLocation")
	idx := schema.NewIndex("byLocation", schema.IndexSpatial,
		keyexpr.Concat(keyexpr.Field("lat"), keyexpr.Field("lon")), []string{"Store"}, nil)
	m, err := NewMaintainer(idx, sub)
	require.NoError(t, err)
	sm := m.(*spatialMaintainer)

	rec := fakeRecord{typ: "Store", fields: map[string]keyexpr.FieldValue{
		"lat": {Name: "lat", Elements: []tuple.Element{tuple.Double(37.7749)}},
		"lon": {Name: "lon", Elements: []tuple.Element{tuple.Double(-122.4194)}},
	}}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return m.Update(ctx, tx, nil, rec, tuple.Of(tuple.Int(1)))
	}))

	hash := encodeGeohash(37.7749, -122.4194, defaultGeohashPrecision)
	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		begin, end := sm.GeohashPrefixRange(hash[:4])
		c, err := tx.Range(ctx, begin, end)
		require.NoError(t, err)
		defer c.Close()
		k, _, err := c.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, k)
		return nil
	}))
}
