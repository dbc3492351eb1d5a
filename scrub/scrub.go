// Package scrub verifies a built index against its entity's records in two
// independent passes: dangling entries (an index entry whose record is
// gone, or no longer produces that entry) and missing entries (a record
// whose expected entry isn't in the index). Both passes can optionally
// repair what they find.
//
// Scope: scrub interprets the physical key layout directly, which it can
// only do for VALUE and UNIQUE indexes (the two plain entry-per-path
// shapes) and only for single-entity indexes (the primary-key arity used
// to split an entry key into indexed-value/primary-key portions must be
// unambiguous). Other index kinds and multi-entity indexes return a
// Metrics with Skipped=1 and a reason rather than attempting unsound key
// parsing.
package scrub

import (
	"context"
	"time"

	"github.com/fdbrl/recordlayer/internal/rlog"
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/store"
	"github.com/fdbrl/recordlayer/tuple"
)

var log = rlog.New("scrub")

// Phase names which half of a scrub pass a Metrics value describes.
type Phase string

const (
	PhaseDangling Phase = "dangling"
	PhaseMissing  Phase = "missing"
)

// defaultBatchSize bounds how many entries/records one internal
// transaction touches, the same batching discipline the indexer uses to
// avoid one long-running transaction.
const defaultBatchSize = 500

// Options configures one scrub pass.
type Options struct {
	BatchSize int
	Repair    bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	return o
}

// Metrics summarizes one scrub pass, labeled by (IndexName, RecordType,
// Phase) the way the indexer's Result is labeled by index/entity.
type Metrics struct {
	IndexName       string
	RecordType      string
	Phase           Phase
	EntriesScanned  int64
	RecordsScanned  int64
	DanglingEntries int64
	MissingEntries  int64
	Repaired        int64
	Skipped         int64
	SkipReason      string
	BatchDuration   time.Duration
}

// Scrubber runs scrub passes against one RecordStore.
type Scrubber struct {
	st *store.RecordStore
}

// New creates a Scrubber over st.
func New(st *store.RecordStore) *Scrubber {
	return &Scrubber{st: st}
}

// supportedIndex resolves idxName and checks it against scrub's scope
// (VALUE/UNIQUE, single entity), returning the index, its sole entity, and
// the primary-key arity entries are split on.
func (s *Scrubber) supportedIndex(idxName string) (*schema.Index, *schema.Entity, int, string) {
	idx, ok := s.st.Schema().Index(idxName)
	if !ok {
		return nil, nil, 0, "no such index"
	}
	if idx.Kind != schema.IndexValue && idx.Kind != schema.IndexUnique {
		return nil, nil, 0, "scrub only interprets VALUE/UNIQUE index layouts"
	}
	if len(idx.RecordTypes) != 1 {
		return nil, nil, 0, "scrub requires a single-entity index"
	}
	entity, ok := s.st.Schema().Entity(idx.RecordTypes[0])
	if !ok {
		return nil, nil, 0, "index references unknown entity"
	}
	return idx, entity, pkArity(entity), ""
}

func pkArity(e *schema.Entity) int {
	if e.PrimaryKey.Kind() == keyexpr.KindConcat {
		return len(e.PrimaryKey.Children())
	}
	return 1
}

func packedKey(t tuple.Tuple) string { return string(tuple.Pack(t)) }

// ScrubDangling scans idxName's physical entries, verifying each still
// names a live record that actually produces it.
func (s *Scrubber) ScrubDangling(ctx context.Context, idxName string, opts Options) (Metrics, error) {
	opts = opts.withDefaults()
	idx, entity, arity, reason := s.supportedIndex(idxName)
	m := Metrics{IndexName: idxName, Phase: PhaseDangling}
	if idx == nil {
		m.Skipped = 1
		m.SkipReason = reason
		return m, nil
	}
	m.RecordType = entity.Name

	start := time.Now()
	sub := s.st.IndexSubspace(idxName)
	_, subEnd := sub.Range()
	cursor := sub.Bytes()

	for {
		var danglingKeys [][]byte
		var scannedThisBatch int
		err := s.st.Database().Update(ctx, func(tx kv.RwTx) error {
			c, err := tx.Range(ctx, cursor, subEnd)
			if err != nil {
				return err
			}
			defer c.Close()

			for scannedThisBatch < opts.BatchSize {
				k, v, err := c.Next(ctx)
				if err != nil {
					return err
				}
				if k == nil {
					cursor = nil
					break
				}
				cursor = append([]byte(nil), k...)
				// advance past this key for the next batch's begin bound
				cursor = append(cursor, 0x00)
				scannedThisBatch++
				m.EntriesScanned++

				_, pk, indexed, err := splitEntry(sub, idx, k, v, arity)
				if err != nil {
					return err
				}

				rec, found, err := s.st.Fetch(ctx, tx, entity.Name, pk)
				if err != nil {
					return err
				}
				dangling := false
				if !found {
					dangling = true
				} else {
					paths, err := keyexpr.Evaluate(idx.Root, rec)
					if err != nil {
						return err
					}
					present := false
					for _, p := range paths {
						if packedKey(p) == packedKey(indexed) {
							present = true
							break
						}
					}
					dangling = !present
				}
				if dangling {
					m.DanglingEntries++
					danglingKeys = append(danglingKeys, append([]byte(nil), k...))
				}
			}
			if opts.Repair {
				for _, k := range danglingKeys {
					if err := tx.Clear(ctx, k); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return m, err
		}
		if opts.Repair {
			m.Repaired += int64(len(danglingKeys))
		}
		if cursor == nil || scannedThisBatch == 0 {
			break
		}
	}
	m.BatchDuration = time.Since(start)
	log.Info("dangling scrub complete", "index", idxName, "entries", m.EntriesScanned, "dangling", m.DanglingEntries)
	return m, nil
}

// splitEntry recovers (full path bytes, primary key, indexed value) from
// one physical index entry, dispatched on kind since VALUE and UNIQUE lay
// their entries out differently.
func splitEntry(sub interface{ Unpack([]byte) (tuple.Tuple, error) }, idx *schema.Index, k, v []byte, arity int) (full, pk, indexed tuple.Tuple, err error) {
	switch idx.Kind {
	case schema.IndexUnique:
		indexed, err = sub.Unpack(k)
		if err != nil {
			return nil, nil, nil, err
		}
		pk, err = tuple.Unpack(v)
		if err != nil {
			return nil, nil, nil, err
		}
		return indexed, pk, indexed, nil
	default: // IndexValue
		full, err = sub.Unpack(k)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(full) < arity {
			return nil, nil, nil, nil
		}
		pk = full[len(full)-arity:]
		indexed = full[:len(full)-arity]
		return full, pk, indexed, nil
	}
}

// ScrubMissing scans entityName's records, verifying each produces every
// entry idxName's index layout expects.
func (s *Scrubber) ScrubMissing(ctx context.Context, idxName string, opts Options) (Metrics, error) {
	opts = opts.withDefaults()
	idx, entity, _, reason := s.supportedIndex(idxName)
	m := Metrics{IndexName: idxName, Phase: PhaseMissing}
	if idx == nil {
		m.Skipped = 1
		m.SkipReason = reason
		return m, nil
	}
	m.RecordType = entity.Name

	start := time.Now()
	recSub := s.st.RecordSubspace(entity.Name)
	idxSub := s.st.IndexSubspace(idxName)
	_, recEnd := recSub.Range()
	cursor := recSub.Bytes()

	for {
		var scannedThisBatch int
		err := s.st.Database().Update(ctx, func(tx kv.RwTx) error {
			c, err := tx.Range(ctx, cursor, recEnd)
			if err != nil {
				return err
			}
			defer c.Close()

			for scannedThisBatch < opts.BatchSize {
				k, v, err := c.Next(ctx)
				if err != nil {
					return err
				}
				if k == nil {
					cursor = nil
					break
				}
				cursor = append(append([]byte(nil), k...), 0x00)
				scannedThisBatch++
				m.RecordsScanned++

				pk, err := recSub.Unpack(k)
				if err != nil {
					return err
				}
				rec, err := s.st.DecodeStored(entity.Name, v)
				if err != nil {
					return err
				}
				paths, err := keyexpr.Evaluate(idx.Root, rec)
				if err != nil {
					return err
				}
				for _, p := range paths {
					missing, repairKey, repairVal := s.checkEntry(ctx, tx, idx, idxSub, p, pk)
					if !missing {
						continue
					}
					m.MissingEntries++
					if opts.Repair {
						if err := tx.Put(ctx, repairKey, repairVal); err != nil {
							return err
						}
						m.Repaired++
					}
				}
			}
			return nil
		})
		if err != nil {
			return m, err
		}
		if cursor == nil || scannedThisBatch == 0 {
			break
		}
	}
	m.BatchDuration = time.Since(start)
	log.Info("missing scrub complete", "index", idxName, "records", m.RecordsScanned, "missing", m.MissingEntries)
	return m, nil
}

func (s *Scrubber) checkEntry(ctx context.Context, tx kv.Tx, idx *schema.Index, idxSub interface {
	Pack(tuple.Tuple) []byte
}, path, pk tuple.Tuple) (missing bool, key, value []byte) {
	switch idx.Kind {
	case schema.IndexUnique:
		key = idxSub.Pack(path)
		existing, found, err := tx.Get(ctx, key)
		if err != nil || !found {
			return true, key, tuple.Pack(pk)
		}
		other, err := tuple.Unpack(existing)
		if err != nil || tuple.Compare(other, pk) != 0 {
			return true, key, tuple.Pack(pk)
		}
		return false, nil, nil
	default: // IndexValue
		full := append(append(tuple.Tuple{}, path...), pk...)
		key = idxSub.Pack(full)
		_, found, err := tx.Get(ctx, key)
		if err != nil || !found {
			return true, key, nil
		}
		return false, nil, nil
	}
}
