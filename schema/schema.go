// Package schema holds the declarative metadata the rest of the record
// layer is built from: entities (record types), their field descriptors,
// their primary key expression, and the indexes defined over them. How an
// application declares this metadata (struct tags, a DSL, reflection, ...)
// is out of scope per spec.md §1 — this package only needs the resulting
// in-memory Schema.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fdbrl/recordlayer/keyexpr"
)

// FieldKind classifies how a field's values fan out, mirroring
// keyexpr.FieldValue's shapes.
type FieldKind int

const (
	FieldScalar FieldKind = iota
	FieldOptional
	FieldRepeated
	FieldRangeTyped
)

// FieldDescriptor is one entry of an Entity's fixed, ordered field set.
type FieldDescriptor struct {
	Name              string
	Tag               uint32
	Kind              FieldKind
	RangeBoundaryType keyexpr.BoundaryType // meaningful only when Kind == FieldRangeTyped
}

// Entity is a named record type with a fixed ordered field set and a
// primary key expression.
type Entity struct {
	Name           string
	FieldsOrdered  []FieldDescriptor
	PrimaryKey     keyexpr.Expr
	EnforcePKUnique bool
}

// Field looks up a field descriptor by name.
func (e *Entity) Field(name string) (FieldDescriptor, bool) {
	for _, f := range e.FieldsOrdered {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Version is the (major, minor, patch) triple used only for change
// tracking, mirroring the teacher's types.VersionReply{Major,Minor,Patch}
// convention (erigon-lib/kv/tables.go's DBSchemaVersion).
type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Schema is the set of entities and indexes an application declares.
type Schema struct {
	mu       sync.RWMutex
	version  Version
	entities map[string]*Entity
	indexes  map[string]*Index
}

// New creates an empty Schema at the given version.
func New(version Version) *Schema {
	return &Schema{
		version:  version,
		entities: make(map[string]*Entity),
		indexes:  make(map[string]*Index),
	}
}

func (s *Schema) Version() Version { return s.version }

// SchemaMismatchError is returned when a lookup or registration references
// an entity/index that is inconsistent with the rest of the schema.
type SchemaMismatchError struct {
	Reason string
}

func (e *SchemaMismatchError) Error() string { return "schema mismatch: " + e.Reason }

// AddEntity registers e. Returns *SchemaMismatchError if an entity with the
// same name already exists.
func (s *Schema) AddEntity(e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[e.Name]; exists {
		return &SchemaMismatchError{Reason: fmt.Sprintf("entity %q already registered", e.Name)}
	}
	s.entities[e.Name] = e
	return nil
}

// Entity looks up an entity by name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	return e, ok
}

// AddIndex registers idx after validating every named record type exists.
func (s *Schema) AddIndex(idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.indexes[idx.Name]; exists {
		return &SchemaMismatchError{Reason: fmt.Sprintf("index %q already registered", idx.Name)}
	}
	for _, rt := range idx.RecordTypes {
		if _, ok := s.entities[rt]; !ok {
			return &SchemaMismatchError{Reason: fmt.Sprintf("index %q references unknown record type %q", idx.Name, rt)}
		}
	}
	s.indexes[idx.Name] = idx
	return nil
}

// Index looks up an index by name.
func (s *Schema) Index(name string) (*Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	return idx, ok
}

// IndexesFor returns every index (in a stable, name-sorted order) whose
// RecordTypes include entityName.
func (s *Schema) IndexesFor(entityName string) []*Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Index
	for _, idx := range s.indexes {
		for _, rt := range idx.RecordTypes {
			if rt == entityName {
				out = append(out, idx)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllIndexes returns every registered index in name-sorted order.
func (s *Schema) AllIndexes() []*Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Index, 0, len(s.indexes))
	for _, idx := range s.indexes {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
