// Package memkv is an in-memory reference implementation of kv.Database,
// used only by this module's own tests — the real FDB-style backend is
// external per spec.md's non-goals. It keeps keys in a google/btree ordered
// map (the same choice the teacher's go.mod already commits to) and
// enforces first-committer-wins conflict detection: a read-write
// transaction's Commit fails with a kv.RetryableError if any key it read
// was written by another transaction that committed first.
package memkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/fdbrl/recordlayer/kv"
	"github.com/google/btree"
)

type entry struct {
	key   []byte
	value []byte
}

func lessEntry(a, b entry) bool { return bytes.Compare(a.key, b.key) < 0 }

// Database is a single in-memory keyspace guarded by a mutex, with one
// B-tree-ordered generation per commit.
type Database struct {
	mu      sync.Mutex
	tree    *btree.BTreeG[entry]
	version uint64
	closed  bool
}

// New creates an empty in-memory Database.
func New() *Database {
	return &Database{tree: btree.NewG[entry](32, lessEntry)}
}

func (d *Database) snapshot() (*btree.BTreeG[entry], uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree.Clone(), d.version
}

func (d *Database) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := d.BeginRo(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}

func (d *Database) Update(ctx context.Context, fn func(tx kv.RwTx) error) error {
	rwtx, err := d.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := fn(rwtx); err != nil {
		rwtx.Rollback(ctx)
		return err
	}
	return rwtx.Commit(ctx)
}

func (d *Database) BeginRo(ctx context.Context) (kv.Tx, error) {
	snap, ver := d.snapshot()
	return &readTx{db: d, snap: snap, baseVersion: ver}, nil
}

func (d *Database) BeginRw(ctx context.Context) (kv.RwTx, error) {
	snap, ver := d.snapshot()
	return &rwTx{
		readTx:  readTx{db: d, snap: snap, baseVersion: ver},
		writes:  btree.NewG[entry](32, lessEntry),
		cleared: make(map[string]bool),
		readSet: make(map[string]bool),
	}, nil
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// readTx is a point-in-time snapshot of the tree, shared by Tx and RwTx.
type readTx struct {
	db          *Database
	snap        *btree.BTreeG[entry]
	baseVersion uint64
}

func (t *readTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, kv.ErrCancelled
	}
	item, ok := t.snap.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (t *readTx) Range(ctx context.Context, begin, end []byte) (kv.Cursor, error) {
	return newCursor(t.snap, begin, end, false), nil
}

func (t *readTx) RangeReverse(ctx context.Context, begin, end []byte) (kv.Cursor, error) {
	return newCursor(t.snap, begin, end, true), nil
}

// rwTx layers a write-buffer (writes + cleared) over a readTx snapshot, and
// tracks every key/range it has read (readSet) for conflict detection at
// Commit time.
type rwTx struct {
	readTx
	writes    *btree.BTreeG[entry]
	cleared   map[string]bool
	clearedRg []rangeMark
	readSet   map[string]bool
	readRgs   []rangeMark
	done      bool
}

type rangeMark struct{ begin, end []byte }

func (t *rwTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	t.readSet[string(key)] = true
	if t.cleared[string(key)] {
		return nil, false, nil
	}
	if item, ok := t.writes.Get(entry{key: key}); ok {
		return append([]byte(nil), item.value...), true, nil
	}
	return t.readTx.Get(ctx, key)
}

func (t *rwTx) Range(ctx context.Context, begin, end []byte) (kv.Cursor, error) {
	t.readRgs = append(t.readRgs, rangeMark{begin: begin, end: end})
	return t.mergedCursor(begin, end, false), nil
}

func (t *rwTx) RangeReverse(ctx context.Context, begin, end []byte) (kv.Cursor, error) {
	t.readRgs = append(t.readRgs, rangeMark{begin: begin, end: end})
	return t.mergedCursor(begin, end, true), nil
}

// mergedCursor overlays the write-buffer on top of the base snapshot for the
// given range, reverse or forward.
func (t *rwTx) mergedCursor(begin, end []byte, reverse bool) kv.Cursor {
	merged := t.snap.Clone()
	t.writes.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		merged.ReplaceOrInsert(e)
		return true
	})
	for k := range t.cleared {
		merged.Delete(entry{key: []byte(k)})
	}
	return newCursor(merged, begin, end, reverse)
}

func rangeLow(begin []byte) entry {
	if begin == nil {
		return entry{key: nil}
	}
	return entry{key: begin}
}

func rangeHigh(end []byte) entry {
	if end == nil {
		return entry{key: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}
	}
	return entry{key: end}
}

func (t *rwTx) Put(ctx context.Context, key, value []byte) error {
	delete(t.cleared, string(key))
	t.writes.ReplaceOrInsert(entry{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (t *rwTx) Clear(ctx context.Context, key []byte) error {
	t.writes.Delete(entry{key: key})
	t.cleared[string(key)] = true
	return nil
}

func (t *rwTx) ClearRange(ctx context.Context, begin, end []byte) error {
	t.clearedRg = append(t.clearedRg, rangeMark{begin: begin, end: end})
	t.writes.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		t.writes.Delete(e)
		return true
	})
	t.snap.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		t.cleared[string(e.key)] = true
		return true
	})
	return nil
}

func (t *rwTx) AtomicAdd(ctx context.Context, key []byte, delta int64) error {
	cur, found, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	var n int64
	if found && len(cur) == 8 {
		n = int64(binary.LittleEndian.Uint64(cur))
	}
	n += delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return t.Put(ctx, key, buf)
}

var errTxDone = errors.New("memkv: transaction already committed or rolled back")

func (t *rwTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if t.db.version != t.baseVersion {
		// Another transaction committed since our snapshot was taken.
		// First-committer-wins: fail if our read set overlaps anything
		// that transaction could plausibly have changed. Since memkv
		// doesn't track per-commit deltas, conservatively check whether
		// any key we depended on changed value relative to our snapshot.
		if t.readSetConflicts() {
			return &kv.RetryableError{Err: errors.New("memkv: conflicting concurrent commit")}
		}
	}

	t.writes.Ascend(func(e entry) bool {
		t.db.tree.ReplaceOrInsert(e)
		return true
	})
	for k := range t.cleared {
		t.db.tree.Delete(entry{key: []byte(k)})
	}
	t.db.version++
	return nil
}

// readSetConflicts compares every key/range this transaction read against
// the database's current tree, conservatively treating any value
// difference as a conflict.
func (t *rwTx) readSetConflicts() bool {
	for k := range t.readSet {
		cur, curOK := t.db.tree.Get(entry{key: []byte(k)})
		snap, snapOK := t.snap.Get(entry{key: []byte(k)})
		if curOK != snapOK {
			return true
		}
		if curOK && !bytes.Equal(cur.value, snap.value) {
			return true
		}
	}
	for _, rg := range t.readRgs {
		if rangeDiffers(t.snap, t.db.tree, rg.begin, rg.end) {
			return true
		}
	}
	return false
}

func rangeDiffers(a, b *btree.BTreeG[entry], begin, end []byte) bool {
	var as, bs []entry
	a.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		as = append(as, e)
		return true
	})
	b.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		bs = append(bs, e)
		return true
	})
	if len(as) != len(bs) {
		return true
	}
	for i := range as {
		if !bytes.Equal(as[i].key, bs[i].key) || !bytes.Equal(as[i].value, bs[i].value) {
			return true
		}
	}
	return false
}

func (t *rwTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
