package index

import (
	"context"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

// versionMaintainer keeps one entry per live primary key, keyed by pk and
// valued by a monotonic sequence number, synthesizing the "_version"
// pseudo-field spec.md describes for optimistic concurrency: the field is
// never exposed through recordcodec, only through this maintainer's entries
// (primary key -> sequence), persisted at `S/I/{indexName}/{pk}/version`
// per spec.md §9's open-question decision. A true FDB-style versionstamp
// (backed by the transaction's commit version) would remove the
// read-then-write of the sequence counter below; this module's
// kv.Database contract doesn't expose one (spec.md's non-goals keep the
// real store external), so a per-index monotonic counter is the documented
// simplification.
type versionMaintainer struct {
	idx *schema.Index
	sub subspace.Subspace
}

func (m *versionMaintainer) Kind() schema.IndexKind { return schema.IndexVersion }

func (m *versionMaintainer) counterKey() []byte {
	return m.sub.Pack(tuple.Of(tuple.Str("__seq")))
}

// versionKey addresses the single live entry for pk: sub || pk || "version".
func (m *versionMaintainer) versionKey(pk tuple.Tuple) []byte {
	full := make(tuple.Tuple, 0, len(pk)+1)
	full = append(full, pk...)
	full = append(full, tuple.Str("version"))
	return m.sub.Pack(full)
}

func encodeInt64(n int64) []byte {
	enc := make([]byte, 8)
	for i := 0; i < 8; i++ {
		enc[i] = byte(n >> (8 * i))
	}
	return enc
}

func (m *versionMaintainer) nextSeq(ctx context.Context, tx kv.RwTx) (int64, error) {
	buf, found, err := tx.Get(ctx, m.counterKey())
	if err != nil {
		return 0, err
	}
	var seq int64
	if found {
		seq = decodeInt64(buf)
	}
	seq++
	if err := tx.Put(ctx, m.counterKey(), encodeInt64(seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

// Update keeps {live entries} in 1:1 correspondence with live primary keys:
// a delete clears the pk's single entry instead of leaving it to rot, and
// an update overwrites it in place rather than appending a second one
// alongside the first.
func (m *versionMaintainer) Update(ctx context.Context, tx kv.RwTx, oldRec, newRec keyexpr.Record, pk tuple.Tuple) error {
	if newRec == nil {
		return tx.Clear(ctx, m.versionKey(pk))
	}
	seq, err := m.nextSeq(ctx, tx)
	if err != nil {
		return err
	}
	return tx.Put(ctx, m.versionKey(pk), encodeInt64(seq))
}
