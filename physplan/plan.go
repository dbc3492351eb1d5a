// Package physplan implements the physical plan operators the planner
// chooses between: IndexScan, Intersection, InJoin, NearestNeighbors,
// FilterPlan (residual in-memory filter), and FullScan. Like query.Filter
// and index.Maintainer, plans are a tagged sum type dispatched by a type
// switch, not an interface hierarchy.
package physplan

import (
	"github.com/fdbrl/recordlayer/query"
	"github.com/fdbrl/recordlayer/tuple"
)

// Kind distinguishes physical plan node shapes.
type Kind int

const (
	KindIndexScan Kind = iota
	KindIntersection
	KindInJoin
	KindNearestNeighbors
	KindFilter
	KindFullScan
	KindEmpty
)

// Plan is a physical plan tree node.
type Plan struct {
	kind Kind

	// IndexScan
	indexName string
	beginKey  tuple.Tuple
	endKey    tuple.Tuple
	beginIncl bool
	endExcl   bool

	// IndexScan against a RANGE_COMPONENT index's "lo"/"hi" sub-index
	// (see index.RangeComponentLo/Hi). rcOpenBegin/rcOpenEnd scan to the
	// edge of that sub-index instead of packing beginKey/endKey, for the
	// overlaps candidate's unbounded side.
	rcSide      string
	rcOpenBegin bool
	rcOpenEnd   bool

	// Intersection / InJoin / Filter
	children []Plan

	// InJoin
	inField  string
	inValues []tuple.Element

	// NearestNeighbors
	vectorIndex string
	queryVector []float64
	k           int

	// Filter
	residual query.Filter

	// FullScan
	entityName string
}

func (p Plan) Kind() Kind                 { return p.kind }
func (p Plan) IndexName() string          { return p.indexName }
func (p Plan) BeginKey() tuple.Tuple      { return p.beginKey }
func (p Plan) EndKey() tuple.Tuple        { return p.endKey }
func (p Plan) Children() []Plan           { return p.children }
func (p Plan) InField() string            { return p.inField }
func (p Plan) InValues() []tuple.Element  { return p.inValues }
func (p Plan) VectorIndex() string        { return p.vectorIndex }
func (p Plan) QueryVector() []float64     { return p.queryVector }
func (p Plan) K() int                     { return p.k }
func (p Plan) Residual() query.Filter     { return p.residual }
func (p Plan) EntityName() string         { return p.entityName }

// IndexScan scans [beginKey, endKey) of the named index.
func IndexScan(indexName string, beginKey, endKey tuple.Tuple) Plan {
	return Plan{kind: KindIndexScan, indexName: indexName, beginKey: beginKey, endKey: endKey}
}

// RangeComponentScan scans one side ("lo" or "hi", see
// index.RangeComponentLo/Hi) of a RANGE_COMPONENT index's paired
// sub-indexes. openBegin/openEnd scan to the edge of that sub-index,
// ignoring beginKey/endKey, for an unbounded query edge.
func RangeComponentScan(indexName, side string, beginKey, endKey tuple.Tuple, openBegin, openEnd bool) Plan {
	return Plan{
		kind:        KindIndexScan,
		indexName:   indexName,
		rcSide:      side,
		beginKey:    beginKey,
		endKey:      endKey,
		rcOpenBegin: openBegin,
		rcOpenEnd:   openEnd,
	}
}

// Intersection emits primary keys present in every child plan's output, in
// ascending primary-key order, without duplicates.
func Intersection(children ...Plan) Plan {
	return Plan{kind: KindIntersection, children: children}
}

// InJoin issues one sub-scan of indexName per value in values (deduped,
// order-preserving) and unions the results, preserving each value's first
// emission order.
func InJoin(indexName string, field string, values []tuple.Element) Plan {
	return Plan{kind: KindInJoin, indexName: indexName, inField: field, inValues: values}
}

// NearestNeighbors requests the k nearest records to queryVector under
// vectorIndex.
func NearestNeighbors(vectorIndex string, queryVector []float64, k int) Plan {
	return Plan{kind: KindNearestNeighbors, vectorIndex: vectorIndex, queryVector: queryVector, k: k}
}

// FilterPlan applies residual in memory to child's output. entityName tells
// the executor which entity to fetch records from to evaluate residual.
func FilterPlan(child Plan, residual query.Filter, entityName string) Plan {
	return Plan{kind: KindFilter, children: []Plan{child}, residual: residual, entityName: entityName}
}

// FullScan scans every record of entityName.
func FullScan(entityName string) Plan {
	return Plan{kind: KindFullScan, entityName: entityName}
}

// Empty matches nothing and issues no sub-scans at all — the planner's
// answer when it can prove a query's predicates are mutually exclusive
// (e.g. two Overlaps windows on the same range field that don't overlap
// each other) without ever touching the store.
func Empty() Plan {
	return Plan{kind: KindEmpty}
}
