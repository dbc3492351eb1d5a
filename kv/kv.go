// Package kv declares the transactional ordered key-value store contract
// the rest of this module is built on: a generalized, FDB-style version of
// the teacher's MDBX transactor contract (erigon-lib/kv/kv_interface.go),
// with MDBX-specific concepts (DupSort, BucketMigrator, ReadersLimit)
// dropped since they have no FDB analogue. A concrete Database is supplied
// by the caller; the real store is external per spec.md's non-goals. This
// module ships only the contract and an in-memory reference implementation
// for its own tests (kv/memkv).
package kv

import "context"

// KeyValue is one entry of a range read.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Cursor iterates a half-open key range [Begin, End) in ascending order.
// A nil End means "no upper bound". Next returns (nil, nil, nil) once the
// range is exhausted.
type Cursor interface {
	// Next advances and returns the next entry, or (nil, nil, nil) at
	// end of range.
	Next(ctx context.Context) (key, value []byte, err error)
	// Close releases cursor resources. Safe to call more than once.
	Close()
}

// Tx is a read-only (or read-view of a read-write) transaction. It offers a
// strictly-serializable snapshot for its lifetime.
type Tx interface {
	// Get returns the value stored at key, or (nil, false, nil) if absent.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// Range returns a Cursor over [begin, end). end == nil means unbounded.
	Range(ctx context.Context, begin, end []byte) (Cursor, error)
	// RangeReverse is Range in descending order.
	RangeReverse(ctx context.Context, begin, end []byte) (Cursor, error)
}

// RwTx is a read-write transaction. Writes are only visible to reads made
// through this same Tx until Commit.
type RwTx interface {
	Tx

	// Put writes key -> value, visible to later reads on this Tx.
	Put(ctx context.Context, key, value []byte) error
	// Clear deletes key, a no-op if absent.
	Clear(ctx context.Context, key []byte) error
	// ClearRange deletes every key in [begin, end).
	ClearRange(ctx context.Context, begin, end []byte) error

	// AtomicAdd applies a commutative, associative delta to the integer
	// stored at key (little-endian, zero-extended), without reading it
	// first — the core primitive COUNT/SUM index maintainers rely on to
	// avoid read-conflicting with concurrent writers on the same counter.
	AtomicAdd(ctx context.Context, key []byte, delta int64) error

	// Commit attempts to commit the transaction. Returns a RetryableError
	// if the commit was rejected due to a conflict and the caller should
	// retry with a fresh transaction.
	Commit(ctx context.Context) error
	// Rollback discards the transaction. Safe to call after Commit.
	Rollback(ctx context.Context) error
}

// Database opens transactions against the underlying store.
type Database interface {
	// View runs fn inside a read-only transaction. The transaction is
	// closed automatically when fn returns.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Update runs fn inside a read-write transaction and commits on
	// success, retrying on RetryableError per the caller's retry policy
	// (this package does not retry internally).
	Update(ctx context.Context, fn func(tx RwTx) error) error

	// BeginRo starts a read-only transaction the caller must Rollback.
	BeginRo(ctx context.Context) (Tx, error)
	// BeginRw starts a read-write transaction the caller must Commit or
	// Rollback.
	BeginRw(ctx context.Context) (RwTx, error)

	// Close releases the database's resources.
	Close() error
}
