// Package keyexpr implements key expressions: the small tree language that
// turns a record into zero-or-more tuples, one per fanout path, which the
// index maintainers then use as index entry values.
package keyexpr

import (
	"fmt"

	"github.com/fdbrl/recordlayer/tuple"
)

// BoundaryType distinguishes a half-open range boundary (exclusive) from a
// closed one (inclusive), per SPEC_FULL.md / spec.md §4.6.
type BoundaryType int

const (
	HalfOpen BoundaryType = iota
	Closed
)

// RangeComponent names which edge of a Range-typed field a Range node reads.
type RangeComponent int

const (
	LowerBound RangeComponent = iota
	UpperBound
)

// Bound is one edge of a range-typed field's value. Infinite marks a
// partial range (no value stored); infinite bounds never occur on a stored
// record field, only on query-side ranges (see SPEC_FULL.md / §4.6/§4.8).
type Bound struct {
	Value    tuple.Element
	Infinite bool
}

// FieldValue is the runtime value a record produces for one declared field.
// Exactly one of {Elements, IsRange} describes its shape:
//   - scalar field: len(Elements) == 1
//   - optional absent field: len(Elements) == 0
//   - repeated field: len(Elements) == N (fanout)
//   - range-typed field: IsRange is true, Lower/Upper/boundary types are set
type FieldValue struct {
	Name           string
	Elements       []tuple.Element
	IsRange        bool
	Lower          Bound
	Upper          Bound
	LowerType      BoundaryType
	UpperType      BoundaryType
}

// Record is the minimal surface key expressions evaluate against. A record's
// concrete Go type is defined by the application's schema declaration (out
// of this package's scope per spec.md §1); all this package needs is the
// ordered list of field values the entity's descriptors produce.
type Record interface {
	RecordType() string
	Field(name string) (FieldValue, bool)
}

// Kind distinguishes the three key-expression node shapes.
type Kind int

const (
	KindField Kind = iota
	KindConcat
	KindRange
)

// Expr is a key-expression tree node. Construct with Field, Concat, or
// RangeExpr; do not build the struct literal directly.
type Expr struct {
	kind      Kind
	fieldName string
	children  []Expr
	component RangeComponent
	boundary  BoundaryType
}

// Field extracts the tuple elements a scalar/optional/repeated field
// produces (one fanout path per element).
func Field(fieldName string) Expr {
	return Expr{kind: KindField, fieldName: fieldName}
}

// Concat composes children as a Cartesian product: the fanout of the
// combined expression is the product of each child's fanout.
func Concat(children ...Expr) Expr {
	return Expr{kind: KindConcat, children: children}
}

// RangeExpr extracts one boundary of a range-typed field.
func RangeExpr(fieldName string, component RangeComponent, boundary BoundaryType) Expr {
	return Expr{kind: KindRange, fieldName: fieldName, component: component, boundary: boundary}
}

func (e Expr) Kind() Kind                  { return e.kind }
func (e Expr) FieldName() string           { return e.fieldName }
func (e Expr) Children() []Expr            { return e.children }
func (e Expr) Component() RangeComponent   { return e.component }
func (e Expr) Boundary() BoundaryType      { return e.boundary }

// MissingFieldError is returned by Evaluate when a key expression names a
// field the record does not carry.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("keyexpr: record has no field %q", e.Field)
}

// InfiniteBoundError is returned when a Range node reads an infinite bound
// off a stored record — stored records never carry unbounded range fields,
// only query-side ranges do.
type InfiniteBoundError struct {
	Field string
}

func (e *InfiniteBoundError) Error() string {
	return fmt.Sprintf("keyexpr: range field %q has an infinite bound on a stored record", e.Field)
}

// Evaluate runs expr against rec, returning one tuple per fanout path.
func Evaluate(expr Expr, rec Record) ([]tuple.Tuple, error) {
	switch expr.kind {
	case KindField:
		fv, ok := rec.Field(expr.fieldName)
		if !ok {
			return nil, &MissingFieldError{Field: expr.fieldName}
		}
		out := make([]tuple.Tuple, 0, len(fv.Elements))
		for _, el := range fv.Elements {
			out = append(out, tuple.Of(el))
		}
		return out, nil

	case KindRange:
		fv, ok := rec.Field(expr.fieldName)
		if !ok {
			return nil, &MissingFieldError{Field: expr.fieldName}
		}
		if !fv.IsRange {
			return nil, fmt.Errorf("keyexpr: field %q is not range-typed", expr.fieldName)
		}
		var b Bound
		if expr.component == LowerBound {
			b = fv.Lower
		} else {
			b = fv.Upper
		}
		if b.Infinite {
			return nil, &InfiniteBoundError{Field: expr.fieldName}
		}
		return []tuple.Tuple{tuple.Of(b.Value)}, nil

	case KindConcat:
		if len(expr.children) == 0 {
			return []tuple.Tuple{{}}, nil
		}
		paths := []tuple.Tuple{{}}
		for _, child := range expr.children {
			childPaths, err := Evaluate(child, rec)
			if err != nil {
				return nil, err
			}
			var next []tuple.Tuple
			for _, prefix := range paths {
				for _, cp := range childPaths {
					combined := make(tuple.Tuple, 0, len(prefix)+len(cp))
					combined = append(combined, prefix...)
					combined = append(combined, cp...)
					next = append(next, combined)
				}
			}
			paths = next
			if len(paths) == 0 {
				break
			}
		}
		return paths, nil

	default:
		return nil, fmt.Errorf("keyexpr: unknown node kind %d", expr.kind)
	}
}
