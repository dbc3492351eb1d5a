package store

import (
	"context"
	"fmt"

	"github.com/fdbrl/recordlayer/index"
	"github.com/fdbrl/recordlayer/internal/rlog"
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/subspace"
	"github.com/fdbrl/recordlayer/tuple"
)

var log = rlog.New("store")

// NoViableIndexError is returned when an operation requires an index this
// schema does not declare.
type NoViableIndexError struct {
	Index string
}

func (e *NoViableIndexError) Error() string {
	return fmt.Sprintf("store: no such index %q", e.Index)
}

// RecordStore ties a Schema to a kv.Database under a root subspace,
// maintaining every index a record's entity declares whenever the record
// changes.
type RecordStore struct {
	db       kv.Database
	sch      *schema.Schema
	root     subspace.Subspace
	recSub   subspace.Subspace
	indexSub subspace.Subspace
}

// New builds a RecordStore. root is the application's root subspace
// (SPEC_FULL.md §6's "S").
func New(db kv.Database, sch *schema.Schema, root subspace.Subspace) *RecordStore {
	return &RecordStore{
		db:       db,
		sch:      sch,
		root:     root,
		recSub:   root.Sub(tuple.Str("R")),
		indexSub: root.Sub(tuple.Str("I")),
	}
}

func (s *RecordStore) recordKey(entityName string, pk tuple.Tuple) []byte {
	return s.recSub.Sub(tuple.Str(entityName)).Pack(pk)
}

func (s *RecordStore) indexSubspace(indexName string) subspace.Subspace {
	return s.indexSub.Sub(tuple.Str(indexName))
}

func (s *RecordStore) maintainer(idx *schema.Index) (index.Maintainer, error) {
	return index.NewMaintainer(idx, s.indexSubspace(idx.Name))
}

// primaryKeyOf evaluates entity.PrimaryKey against rec, requiring exactly
// one fanout path (a primary key may not be optional or repeated).
func primaryKeyOf(entity *schema.Entity, rec keyexpr.Record) (tuple.Tuple, error) {
	paths, err := keyexpr.Evaluate(entity.PrimaryKey, rec)
	if err != nil {
		return nil, err
	}
	if len(paths) != 1 {
		return nil, fmt.Errorf("store: entity %q primary key must evaluate to exactly one path, got %d", entity.Name, len(paths))
	}
	return paths[0], nil
}

// Save upserts a record of the given entity with the given field values,
// running inside tx if non-nil, else opening and committing its own
// transaction. Returns the computed primary key.
func (s *RecordStore) Save(ctx context.Context, tx kv.RwTx, entityName string, values map[string]keyexpr.FieldValue) (tuple.Tuple, error) {
	entity, ok := s.sch.Entity(entityName)
	if !ok {
		return nil, &schema.SchemaMismatchError{Reason: fmt.Sprintf("unknown entity %q", entityName)}
	}
	newRec := &GenericRecord{Type: entityName, Values: values}
	pk, err := primaryKeyOf(entity, newRec)
	if err != nil {
		return nil, err
	}

	if tx != nil {
		if err := s.saveIn(ctx, tx, entity, newRec, pk); err != nil {
			return nil, err
		}
		return pk, nil
	}

	err = s.db.Update(ctx, func(rwtx kv.RwTx) error {
		return s.saveIn(ctx, rwtx, entity, newRec, pk)
	})
	if err != nil {
		return nil, err
	}
	return pk, nil
}

func (s *RecordStore) saveIn(ctx context.Context, tx kv.RwTx, entity *schema.Entity, newRec *GenericRecord, pk tuple.Tuple) error {
	oldRec, err := s.fetchIn(ctx, tx, entity, pk)
	if err != nil {
		return err
	}

	buf, err := EncodeRecord(entity, newRec)
	if err != nil {
		return err
	}
	if err := tx.Put(ctx, s.recordKey(entity.Name, pk), buf); err != nil {
		return err
	}

	var oldAsRecord keyexpr.Record
	if oldRec != nil {
		oldAsRecord = oldRec
	}
	for _, idx := range s.sch.IndexesFor(entity.Name) {
		if idx.State() == schema.StateDisabled {
			continue
		}
		m, err := s.maintainer(idx)
		if err != nil {
			return err
		}
		if err := m.Update(ctx, tx, oldAsRecord, newRec, pk); err != nil {
			log.Warn("index maintenance failed", "index", idx.Name, "entity", entity.Name, "err", err)
			return err
		}
	}
	return nil
}

func (s *RecordStore) fetchIn(ctx context.Context, tx kv.Tx, entity *schema.Entity, pk tuple.Tuple) (*GenericRecord, error) {
	buf, found, err := tx.Get(ctx, s.recordKey(entity.Name, pk))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return DecodeRecord(entity, buf)
}

// Fetch reads one record by primary key, running inside tx if non-nil.
func (s *RecordStore) Fetch(ctx context.Context, tx kv.Tx, entityName string, pk tuple.Tuple) (*GenericRecord, bool, error) {
	entity, ok := s.sch.Entity(entityName)
	if !ok {
		return nil, false, &schema.SchemaMismatchError{Reason: fmt.Sprintf("unknown entity %q", entityName)}
	}
	if tx != nil {
		rec, err := s.fetchIn(ctx, tx, entity, pk)
		return rec, rec != nil, err
	}
	var rec *GenericRecord
	err := s.db.View(ctx, func(vtx kv.Tx) error {
		r, err := s.fetchIn(ctx, vtx, entity, pk)
		rec = r
		return err
	})
	return rec, rec != nil, err
}

// Delete removes a record by primary key and retracts it from every index,
// running inside tx if non-nil.
func (s *RecordStore) Delete(ctx context.Context, tx kv.RwTx, entityName string, pk tuple.Tuple) error {
	entity, ok := s.sch.Entity(entityName)
	if !ok {
		return &schema.SchemaMismatchError{Reason: fmt.Sprintf("unknown entity %q", entityName)}
	}
	del := func(tx kv.RwTx) error {
		oldRec, err := s.fetchIn(ctx, tx, entity, pk)
		if err != nil {
			return err
		}
		if oldRec == nil {
			return nil
		}
		if err := tx.Clear(ctx, s.recordKey(entity.Name, pk)); err != nil {
			return err
		}
		for _, idx := range s.sch.IndexesFor(entity.Name) {
			if idx.State() == schema.StateDisabled {
				continue
			}
			m, err := s.maintainer(idx)
			if err != nil {
				return err
			}
			if err := m.Update(ctx, tx, oldRec, nil, pk); err != nil {
				return err
			}
		}
		return nil
	}
	if tx != nil {
		return del(tx)
	}
	return s.db.Update(ctx, del)
}

// ScanEntity returns every record of entityName in primary key order,
// running inside tx if non-nil. Intended for small tables / tests; larger
// scans should go through query.Filter + planner.
func (s *RecordStore) ScanEntity(ctx context.Context, tx kv.Tx, entityName string) ([]*GenericRecord, error) {
	entity, ok := s.sch.Entity(entityName)
	if !ok {
		return nil, &schema.SchemaMismatchError{Reason: fmt.Sprintf("unknown entity %q", entityName)}
	}
	scan := func(tx kv.Tx) ([]*GenericRecord, error) {
		begin, end := s.recSub.Sub(tuple.Str(entityName)).Range()
		c, err := tx.Range(ctx, begin, end)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		var out []*GenericRecord
		for {
			_, v, err := c.Next(ctx)
			if err != nil {
				return nil, err
			}
			if v == nil {
				break
			}
			rec, err := DecodeRecord(entity, v)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, nil
	}
	if tx != nil {
		return scan(tx)
	}
	var out []*GenericRecord
	err := s.db.View(ctx, func(vtx kv.Tx) error {
		o, err := scan(vtx)
		out = o
		return err
	})
	return out, err
}

// RecordSubspace exposes the entity's record subspace, e.g. for the
// indexer/scrub packages that need to re-scan stored records.
func (s *RecordStore) RecordSubspace(entityName string) subspace.Subspace {
	return s.recSub.Sub(tuple.Str(entityName))
}

// IndexSubspace exposes an index's subspace by name.
func (s *RecordStore) IndexSubspace(indexName string) subspace.Subspace {
	return s.indexSubspace(indexName)
}

// Schema returns the underlying schema.
func (s *RecordStore) Schema() *schema.Schema { return s.sch }

// Database returns the underlying kv.Database.
func (s *RecordStore) Database() kv.Database { return s.db }

// DecodeStored decodes raw record bytes for entityName (used by query/scrub
// code that already holds a cursor's raw bytes).
func (s *RecordStore) DecodeStored(entityName string, buf []byte) (*GenericRecord, error) {
	entity, ok := s.sch.Entity(entityName)
	if !ok {
		return nil, &schema.SchemaMismatchError{Reason: fmt.Sprintf("unknown entity %q", entityName)}
	}
	return DecodeRecord(entity, buf)
}
