// Package indexer implements online (non-blocking) secondary index builds:
// an index moves DISABLED -> WRITE_ONLY immediately (new writes start
// maintaining it), then a Builder walks the entity's existing records in
// fixed-size shards, indexing each one inside its own transaction so a
// build never holds one long-running transaction open. Progress survives
// restarts via a persisted RangeSet of completed shard IDs; a shard that
// fails with a non-retryable error is logged and skipped, counted in
// Result.ShardsFailed, and retried by the next Build; Result.Done reports
// false when any shard failed. Promotion to READABLE does not check build
// results.
package indexer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/fdbrl/recordlayer/index"
	"github.com/fdbrl/recordlayer/internal/numeric"
	"github.com/fdbrl/recordlayer/internal/rlog"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/store"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

var log = rlog.New("indexer")

// Defaults for Options left unset.
const (
	defaultShardSize = 500
	defaultThrottle  = 10 * time.Millisecond
	defaultMaxRetry  = 5
)

// Options configures one Builder.
type Options struct {
	// ShardSize is the number of records grouped into one transactionally
	// indexed unit.
	ShardSize int
	// Throttle is the pause between completed shards, bounding how hard a
	// build competes with foreground traffic.
	Throttle time.Duration
	// MaxRetries bounds retry attempts for a retryable KV error before the
	// shard is treated as failed.
	MaxRetries int
}

func (o Options) withDefaults() Options {
	if o.ShardSize <= 0 {
		o.ShardSize = defaultShardSize
	}
	if o.Throttle <= 0 {
		o.Throttle = defaultThrottle
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	return o
}

// shard is one contiguous slice [begin, end) of an entity's primary-key
// space, fixed for the lifetime of one Build call.
type shard struct {
	id    uint64
	begin tuple.Tuple
	end   tuple.Tuple // nil means "to the end of the record subspace"
}

// Builder drives the online build of one index over one entity.
type Builder struct {
	st         *store.RecordStore
	idx        *schema.Index
	entityName string
	opts       Options
	rangeSub   subspace.Subspace
	building   atomic.Bool
}

// NewBuilder constructs a Builder for idx over entityName, an entry of
// idx.RecordTypes.
func NewBuilder(st *store.RecordStore, idx *schema.Index, entityName string, opts Options) *Builder {
	return &Builder{
		st:         st,
		idx:        idx,
		entityName: entityName,
		opts:       opts.withDefaults(),
		rangeSub:   st.IndexSubspace(idx.Name).Sub(tuple.Str("__build")),
	}
}

// Result summarizes one Build call.
type Result struct {
	ShardsTotal     int
	ShardsCompleted int
	ShardsFailed    int
}

// Done reports whether every shard indexed cleanly, the precondition for
// promoting idx to READABLE.
func (r Result) Done() bool { return r.ShardsFailed == 0 && r.ShardsCompleted == r.ShardsTotal }

// Build indexes every not-yet-complete shard of entityName's existing
// records. It is safe to call repeatedly (e.g. after a process restart) —
// already-complete shards are skipped via the persisted RangeSet, and a
// prior run's failed shards are retried.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	if !b.building.CompareAndSwap(false, true) {
		return Result{}, errors.Errorf("indexer: build already in progress for index %q", b.idx.Name)
	}
	defer b.building.Store(false)

	if b.idx.State() == schema.StateDisabled {
		if err := b.idx.SetState(schema.StateWriteOnly); err != nil {
			return Result{}, errors.Wrap(err, "indexer: promote to WRITE_ONLY")
		}
	}

	shards, err := b.shardBoundaries(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "indexer: compute shard boundaries")
	}

	rs, err := b.loadRangeSet(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "indexer: load range set")
	}

	res := Result{ShardsTotal: len(shards)}
	for _, sh := range shards {
		if rs.IsComplete(sh.id) {
			res.ShardsCompleted++
			continue
		}
		if err := b.indexShardWithRetry(ctx, sh); err != nil {
			log.Warn("shard failed, skipping", "index", b.idx.Name, "entity", b.entityName, "shard", sh.id, "err", err)
			res.ShardsFailed++
			continue
		}
		rs.MarkComplete(sh.id)
		if err := b.saveRangeSet(ctx, rs); err != nil {
			return res, errors.Wrap(err, "indexer: persist range set")
		}
		res.ShardsCompleted++

		if b.opts.Throttle > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(b.opts.Throttle):
			}
		}
	}
	return res, nil
}

// Rebuild clears idx's index subspace and build progress, and drops it back
// to WRITE_ONLY so a subsequent Build starts from scratch. Used for
// schema/data migrations or to recover from a scrub finding widespread
// corruption.
func (b *Builder) Rebuild(ctx context.Context) error {
	if err := b.idx.SetState(schema.StateWriteOnly); err != nil {
		return err
	}
	return b.st.Database().Update(ctx, func(tx kv.RwTx) error {
		sub := b.st.IndexSubspace(b.idx.Name)
		begin, end := sub.Range()
		if err := tx.ClearRange(ctx, begin, end); err != nil {
			return err
		}
		return nil
	})
}

func (b *Builder) indexShardWithRetry(ctx context.Context, sh shard) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.opts.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := b.indexShard(ctx, sh)
		if err == nil {
			return nil
		}
		if kv.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

func (b *Builder) indexShard(ctx context.Context, sh shard) error {
	return b.st.Database().Update(ctx, func(tx kv.RwTx) error {
		sub := b.st.RecordSubspace(b.entityName)
		begin := sub.Pack(sh.begin)
		var end []byte
		if sh.end != nil {
			end = sub.Pack(sh.end)
		} else {
			_, end = sub.Range()
		}
		c, err := tx.Range(ctx, begin, end)
		if err != nil {
			return err
		}
		defer c.Close()

		m, err := index.NewMaintainer(b.idx, b.st.IndexSubspace(b.idx.Name))
		if err != nil {
			return err
		}

		for {
			k, v, err := c.Next(ctx)
			if err != nil {
				return err
			}
			if k == nil {
				break
			}
			pk, err := sub.Unpack(k)
			if err != nil {
				return err
			}
			rec, err := b.st.DecodeStored(b.entityName, v)
			if err != nil {
				return err
			}
			if err := m.Update(ctx, tx, nil, rec, pk); err != nil {
				return err
			}
		}
		return nil
	})
}

// shardBoundaries samples the entity's existing primary keys into
// opts.ShardSize-sized groups, in ascending key order, fixing the shard
// list for this Build call. The number and boundaries of shards can change
// between runs as records are inserted/deleted; RangeSet only promises
// that shard IDs are stable *within* one run.
func (b *Builder) shardBoundaries(ctx context.Context) ([]shard, error) {
	var pks []tuple.Tuple
	err := b.st.Database().View(ctx, func(tx kv.Tx) error {
		sub := b.st.RecordSubspace(b.entityName)
		begin, end := sub.Range()
		c, err := tx.Range(ctx, begin, end)
		if err != nil {
			return err
		}
		defer c.Close()
		for {
			k, _, err := c.Next(ctx)
			if err != nil {
				return err
			}
			if k == nil {
				break
			}
			pk, err := sub.Unpack(k)
			if err != nil {
				return err
			}
			pks = append(pks, pk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	shards := make([]shard, 0, numeric.CeilDiv(len(pks), b.opts.ShardSize))
	var id uint64
	for i := 0; i < len(pks); i += b.opts.ShardSize {
		end := i + b.opts.ShardSize
		var endKey tuple.Tuple
		if end < len(pks) {
			endKey = pks[end]
		}
		shards = append(shards, shard{id: id, begin: pks[i], end: endKey})
		id++
	}
	return shards, nil
}

func (b *Builder) rangeSetKey() []byte {
	return b.rangeSub.Pack(tuple.Of(tuple.Str("bitmap")))
}

func (b *Builder) loadRangeSet(ctx context.Context) (*RangeSet, error) {
	var rs *RangeSet
	err := b.st.Database().View(ctx, func(tx kv.Tx) error {
		v, found, err := tx.Get(ctx, b.rangeSetKey())
		if err != nil {
			return err
		}
		if !found {
			rs = NewRangeSet()
			return nil
		}
		rs, err = DecodeRangeSet(v)
		return err
	})
	return rs, err
}

func (b *Builder) saveRangeSet(ctx context.Context, rs *RangeSet) error {
	data, err := rs.Encode()
	if err != nil {
		return err
	}
	return b.st.Database().Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(ctx, b.rangeSetKey(), data)
	})
}
