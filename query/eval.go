package query

import (
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/tuple"
)

// Matches evaluates f against rec in memory, the residual-filter semantics
// physplan.FilterPlan relies on once an index scan has narrowed candidates.
// A repeated field matches a comparison if ANY of its elements match
// (spec.md's repeated-field ANY-semantics).
func Matches(f Filter, rec keyexpr.Record) (bool, error) {
	switch f.kind {
	case KindComparison:
		fv, ok := rec.Field(f.field)
		if !ok {
			return false, nil
		}
		for _, el := range fv.Elements {
			if compareOp(f.op, el, f.value) {
				return true, nil
			}
		}
		return false, nil

	case KindIn:
		fv, ok := rec.Field(f.field)
		if !ok {
			return false, nil
		}
		for _, el := range fv.Elements {
			for _, v := range f.values {
				if tuple.Compare(tuple.Of(el), tuple.Of(v)) == 0 {
					return true, nil
				}
			}
		}
		return false, nil

	case KindOverlaps:
		fv, ok := rec.Field(f.field)
		if !ok || !fv.IsRange {
			return false, nil
		}
		return rangesOverlap(fv, f), nil

	case KindAnd:
		for _, c := range f.children {
			ok, err := Matches(c, rec)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case KindOr:
		for _, c := range f.children {
			ok, err := Matches(c, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case KindNot:
		ok, err := Matches(f.children[0], rec)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, nil
	}
}

func compareOp(op Op, a, b tuple.Element) bool {
	c := tuple.Compare(tuple.Of(a), tuple.Of(b))
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	case OpStartsWith:
		if a.Kind() != tuple.KindString || b.Kind() != tuple.KindString {
			return false
		}
		as, bs := a.AsString(), b.AsString()
		return len(as) >= len(bs) && as[:len(bs)] == bs
	case OpContains:
		if a.Kind() != tuple.KindString || b.Kind() != tuple.KindString {
			return false
		}
		return containsSubstring(a.AsString(), b.AsString())
	default:
		return false
	}
}

func containsSubstring(s, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// rangesOverlap implements the boundary-combination table of spec.md §4.6:
// a stored range [fv.Lower, fv.Upper) per its boundary types overlaps a
// query window [f.lower, f.upper); the query window's own edges are always
// half-open (the query API only ever expresses "from X" / "before Y").
func rangesOverlap(fv keyexpr.FieldValue, f Filter) bool {
	lowOK := f.upperInf || fv.Lower.Infinite || compareBoundary(fv.Lower.Value, fv.LowerType, f.upper, keyexpr.HalfOpen)
	highOK := fv.Upper.Infinite || f.lowerInf || compareBoundary(f.lower, keyexpr.HalfOpen, fv.Upper.Value, fv.UpperType)
	return lowOK && highOK
}

// compareBoundary reports whether edge a (of type aType) falls strictly
// before edge b (of type bType); when the two edge values are equal, the
// edges only overlap if at least one side is Closed at that point — two
// half-open edges meeting at the same value do not overlap.
func compareBoundary(a tuple.Element, aType keyexpr.BoundaryType, b tuple.Element, bType keyexpr.BoundaryType) bool {
	c := tuple.Compare(tuple.Of(a), tuple.Of(b))
	if c != 0 {
		return c < 0
	}
	return aType == keyexpr.Closed || bType == keyexpr.Closed
}
