package planner

import (
	"github.com/fdbrl/recordlayer/index"
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/physplan"
	"github.com/fdbrl/recordlayer/query"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/tuple"
)

// maxCandidatePlans bounds how many physical plans one Plan() call will
// cost-estimate, keeping planning itself cheap relative to execution.
const maxCandidatePlans = 20

// candidate pairs a physical plan with a label identifying its shape, used
// only for diagnostics (Explain).
type candidate struct {
	plan  physplan.Plan
	label string
}

// generateCandidates builds every candidate physical plan for entityName
// matching f, bounded by maxCandidatePlans. A FullScan fallback is appended
// after the index candidates; when the index candidates alone reach
// maxCandidatePlans, the fallback is not included.
func generateCandidates(sch *schema.Schema, entityName string, f query.Filter) []candidate {
	rewritten := query.Rewrite(f)
	conjuncts := flattenAnd(rewritten)
	indexes := sch.IndexesFor(entityName)

	// Two or more Overlaps clauses on the same range field can prove their
	// own query unsatisfiable (e.g. "after Jul 1" and "before Mar 31" on the
	// same field): no record can ever match, so the only candidate worth
	// costing is one that issues no sub-scans at all.
	if emptyOverlapWindow(conjuncts) {
		return []candidate{{plan: physplan.Empty(), label: "empty"}}
	}

	var out []candidate

	// Single-index equality or IN scans, one per (conjunct, usable index) pair.
	for ci, c := range conjuncts {
		for _, idx := range indexes {
			if idx.State() != schema.StateReadable {
				continue
			}
			if idx.Kind != schema.IndexValue && idx.Kind != schema.IndexUnique {
				continue
			}
			fieldName, ok := singleFieldIndex(idx)
			if !ok {
				continue
			}
			if c.Field() != fieldName {
				continue
			}

			switch c.Kind() {
			case query.KindComparison:
				if c.Op() != query.OpEq {
					continue
				}
				begin := tuple.Of(c.Value())
				end := physplan.ExtendForEquality(begin)
				plan := physplan.IndexScan(idx.Name, begin, end)
				residual := residualOf(conjuncts, ci, entityName)
				out = append(out, candidate{plan: wrapResidual(plan, residual, entityName), label: "indexscan:" + idx.Name})

			case query.KindIn:
				plan := physplan.InJoin(idx.Name, fieldName, c.Values())
				residual := residualOf(conjuncts, ci, entityName)
				out = append(out, candidate{plan: wrapResidual(plan, residual, entityName), label: "injoin:" + idx.Name})
			}

			if len(out) >= maxCandidatePlans {
				return out
			}
		}
	}

	// Pair of RANGE_COMPONENT sub-indexes for an Overlaps conjunct's range
	// field: Intersection([scan(lo-side), scan(hi-side)]), per spec.md §4.6.
	// Bounding the lo-side by the query's upper edge and the hi-side by its
	// lower edge turns §4.8's non-empty prefilter window into real sub-scans
	// instead of a full scan filtered in memory.
	for ci, c := range conjuncts {
		if c.Kind() != query.KindOverlaps {
			continue
		}
		for _, idx := range indexes {
			if idx.State() != schema.StateReadable || idx.Kind != schema.IndexRangeComponent {
				continue
			}
			if idx.Root.FieldName() != c.Field() {
				continue
			}
			plan := rangeComponentCandidate(idx, c)
			residual := residualOf(conjuncts, ci, entityName)
			out = append(out, candidate{plan: wrapResidual(plan, residual, entityName), label: "rangecomponent:" + idx.Name})

			if len(out) >= maxCandidatePlans {
				return out
			}
		}
	}

	// Intersection of every equality-indexable conjunct at once, when there
	// are at least two, with whatever's left over applied as a residual.
	var eqChildren []physplan.Plan
	var eqConsumed []int
	for ci, c := range conjuncts {
		if c.Kind() != query.KindComparison || c.Op() != query.OpEq {
			continue
		}
		for _, idx := range indexes {
			if idx.State() != schema.StateReadable || idx.Kind != schema.IndexValue {
				continue
			}
			fieldName, ok := singleFieldIndex(idx)
			if !ok || fieldName != c.Field() {
				continue
			}
			begin := tuple.Of(c.Value())
			eqChildren = append(eqChildren, physplan.IndexScan(idx.Name, begin, physplan.ExtendForEquality(begin)))
			eqConsumed = append(eqConsumed, ci)
			break
		}
	}
	if len(eqChildren) >= 2 {
		plan := physplan.Intersection(eqChildren...)
		residual := residualOfMany(conjuncts, eqConsumed, entityName)
		out = append(out, candidate{plan: wrapResidual(plan, residual, entityName), label: "intersection"})
	}

	// FullScan fallback: always viable, always correct, usually most costly.
	fullPlan := physplan.FullScan(entityName)
	out = append(out, candidate{plan: wrapResidual(fullPlan, &rewritten, entityName), label: "fullscan"})

	if len(out) > maxCandidatePlans {
		out = out[:maxCandidatePlans]
	}
	return out
}

// singleFieldIndex returns the field name an index's root key expression
// selects, when that root is a bare Field(name) expression — the only
// shape generateCandidates knows how to drive an equality/IN scan from.
func singleFieldIndex(idx *schema.Index) (string, bool) {
	if idx.Root.Kind() != keyexpr.KindField {
		return "", false
	}
	return idx.Root.FieldName(), true
}

// rangeComponentCandidate builds the Intersection of idx's "lo" and "hi"
// sub-index scans bounding c's query window, per spec.md §4.6/§4.8. The
// query's own edges are always half-open (query.Overlaps never carries a
// boundary type of its own); idx.Root.Boundary() is the stored field's
// boundary type, fixed per the index's declaration, and decides whether an
// edge equal to the query bound counts as overlapping (see
// query/eval.go's compareBoundary).
//
// lo-side (recLo values): a record's lower bound must sit strictly before
// the query's upper edge, or at it when the field's lower bound is Closed,
// so the lo scan runs from the sub-index's start up to (at or past) upper.
// hi-side (recHi values): a record's upper bound must sit strictly after
// the query's lower edge, or at it when the field's upper bound is Closed,
// so the hi scan runs from (at or past) lower to the sub-index's end.
// Either edge may be infinite, in which case that side scans unbounded.
func rangeComponentCandidate(idx *schema.Index, c query.Filter) physplan.Plan {
	boundary := idx.Root.Boundary()
	lower, lowerInf := c.Lower()
	upper, upperInf := c.Upper()

	var loEnd tuple.Tuple
	if !upperInf {
		if boundary == keyexpr.Closed {
			loEnd = physplan.ExtendForEquality(tuple.Of(upper))
		} else {
			loEnd = tuple.Of(upper)
		}
	}
	loScan := physplan.RangeComponentScan(idx.Name, index.RangeComponentLo, nil, loEnd, true, upperInf)

	var hiBegin tuple.Tuple
	if !lowerInf {
		if boundary == keyexpr.Closed {
			hiBegin = tuple.Of(lower)
		} else {
			hiBegin = physplan.ExtendForEquality(tuple.Of(lower))
		}
	}
	hiScan := physplan.RangeComponentScan(idx.Name, index.RangeComponentHi, hiBegin, nil, lowerInf, true)

	return physplan.Intersection(loScan, hiScan)
}

// overlapBound tracks the tightest query-side window seen so far for one
// range field, across every Overlaps conjunct naming it.
type overlapBound struct {
	hasLower, hasUpper bool
	lower, upper       tuple.Element
}

// emptyOverlapWindow reports whether conjuncts intersects two or more
// Overlaps clauses on some field into an empty window — a bounded lower
// edge at or past a bounded upper edge, meaning no value can satisfy both
// at once.
func emptyOverlapWindow(conjuncts []query.Filter) bool {
	byField := make(map[string]overlapBound)
	for _, c := range conjuncts {
		if c.Kind() != query.KindOverlaps {
			continue
		}
		b := byField[c.Field()]
		lower, lowerInf := c.Lower()
		upper, upperInf := c.Upper()
		if !lowerInf && (!b.hasLower || tuple.Compare(tuple.Of(lower), tuple.Of(b.lower)) > 0) {
			b.lower, b.hasLower = lower, true
		}
		if !upperInf && (!b.hasUpper || tuple.Compare(tuple.Of(upper), tuple.Of(b.upper)) < 0) {
			b.upper, b.hasUpper = upper, true
		}
		byField[c.Field()] = b
	}
	for _, b := range byField {
		if b.hasLower && b.hasUpper && tuple.Compare(tuple.Of(b.lower), tuple.Of(b.upper)) >= 0 {
			return true
		}
	}
	return false
}

func flattenAnd(f query.Filter) []query.Filter {
	if f.Kind() == query.KindAnd {
		return append([]query.Filter(nil), f.Children()...)
	}
	return []query.Filter{f}
}

// residualOf returns an And() of every conjunct except the one at index
// consumed, or a zero-value (always-true-ish, handled by wrapResidual) when
// nothing is left.
func residualOf(conjuncts []query.Filter, consumed int, entityName string) *query.Filter {
	return residualOfMany(conjuncts, []int{consumed}, entityName)
}

func residualOfMany(conjuncts []query.Filter, consumed []int, entityName string) *query.Filter {
	consumedSet := make(map[int]bool, len(consumed))
	for _, i := range consumed {
		consumedSet[i] = true
	}
	var remaining []query.Filter
	for i, c := range conjuncts {
		if !consumedSet[i] {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		return nil
	}
	if len(remaining) == 1 {
		return &remaining[0]
	}
	r := query.And(remaining...)
	return &r
}

func wrapResidual(plan physplan.Plan, residual *query.Filter, entityName string) physplan.Plan {
	if residual == nil {
		return plan
	}
	return physplan.FilterPlan(plan, *residual, entityName)
}
