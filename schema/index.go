package schema

import (
	"fmt"
	"sync/atomic"

	"github.com/fdbrl/recordlayer/keyexpr"
)

// IndexKind names the maintenance strategy an index uses, dispatched by the
// index package via a type switch rather than an open interface hierarchy.
type IndexKind int

const (
	IndexValue IndexKind = iota
	IndexUnique
	IndexRank
	IndexCount
	IndexSum
	IndexMin
	IndexMax
	IndexAverage
	IndexVersion
	IndexVector
	IndexSpatial
	IndexRangeComponent
)

func (k IndexKind) String() string {
	switch k {
	case IndexValue:
		return "VALUE"
	case IndexUnique:
		return "UNIQUE"
	case IndexRank:
		return "RANK"
	case IndexCount:
		return "COUNT"
	case IndexSum:
		return "SUM"
	case IndexMin:
		return "MIN"
	case IndexMax:
		return "MAX"
	case IndexAverage:
		return "AVERAGE"
	case IndexVersion:
		return "VERSION"
	case IndexVector:
		return "VECTOR"
	case IndexSpatial:
		return "SPATIAL"
	case IndexRangeComponent:
		return "RANGE_COMPONENT"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// IndexState is a position in the index build lifecycle.
type IndexState int32

const (
	StateDisabled IndexState = iota
	StateWriteOnly
	StateReadable
)

func (s IndexState) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateWriteOnly:
		return "WRITE_ONLY"
	case StateReadable:
		return "READABLE"
	default:
		return fmt.Sprintf("IndexState(%d)", int(s))
	}
}

// IndexStateTransitionError is returned when a caller requests a state
// transition the lifecycle does not permit.
type IndexStateTransitionError struct {
	Index    string
	From, To IndexState
}

func (e *IndexStateTransitionError) Error() string {
	return fmt.Sprintf("index %q: illegal state transition %s -> %s", e.Index, e.From, e.To)
}

// ValidTransition reports whether the lifecycle permits moving from 'from'
// to 'to': DISABLED -> WRITE_ONLY -> READABLE, WRITE_ONLY -> DISABLED, and
// READABLE -> WRITE_ONLY (rebuild). Every state may transition to itself
// (a no-op).
func ValidTransition(from, to IndexState) bool {
	if from == to {
		return true
	}
	switch from {
	case StateDisabled:
		return to == StateWriteOnly
	case StateWriteOnly:
		return to == StateReadable || to == StateDisabled
	case StateReadable:
		return to == StateWriteOnly
	default:
		return false
	}
}

// Index is the declarative description of one secondary (or primary-shadow)
// index: its name, maintenance kind, the key expression it indexes, the
// record types it applies to, kind-specific options (e.g. vector dimension,
// spatial precision), and its current lifecycle state.
//
// Options parametrizes kind-specific maintainer behavior; the SPATIAL
// maintainer reads its "precision" entry, and no other kind reads Options.
// It is opaque to this package.
type Index struct {
	Name        string
	Kind        IndexKind
	Root        keyexpr.Expr
	RecordTypes []string
	Options     map[string]any

	state atomic.Int32
}

// NewIndex constructs an Index in its initial DISABLED state.
func NewIndex(name string, kind IndexKind, root keyexpr.Expr, recordTypes []string, options map[string]any) *Index {
	idx := &Index{
		Name:        name,
		Kind:        kind,
		Root:        root,
		RecordTypes: recordTypes,
		Options:     options,
	}
	idx.state.Store(int32(StateDisabled))
	return idx
}

// State returns the index's current lifecycle state.
func (idx *Index) State() IndexState {
	return IndexState(idx.state.Load())
}

// SetState attempts the transition idx.State() -> to, enforcing
// ValidTransition. The state is held in memory only; SetState performs no
// KV write.
func (idx *Index) SetState(to IndexState) error {
	from := IndexState(idx.state.Load())
	if !ValidTransition(from, to) {
		return &IndexStateTransitionError{Index: idx.Name, From: from, To: to}
	}
	idx.state.Store(int32(to))
	return nil
}
