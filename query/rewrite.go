package query

import "github.com/fdbrl/recordlayer/tuple"

const (
	maxDNFTerms = 100
	maxDepth    = 20
)

// Rewrite normalizes f: pushes Not through De Morgan's laws, flattens
// nested And/Or of the same kind, deduplicates identical children, and
// bounds the resulting depth. DNF expansion is performed separately by
// ToDNF since not every caller wants it (the planner only DNF-expands when
// choosing between Intersection-eligible candidate plans).
func Rewrite(f Filter) Filter {
	return rewriteDepth(f, 0)
}

func rewriteDepth(f Filter, depth int) Filter {
	if depth >= maxDepth {
		return f
	}
	switch f.kind {
	case KindNot:
		return pushNot(f.children[0], depth+1)
	case KindAnd:
		return flatten(KindAnd, f, depth)
	case KindOr:
		return flatten(KindOr, f, depth)
	default:
		return f
	}
}

func pushNot(inner Filter, depth int) Filter {
	switch inner.kind {
	case KindNot:
		return rewriteDepth(inner.children[0], depth)
	case KindAnd:
		negated := make([]Filter, len(inner.children))
		for i, c := range inner.children {
			negated[i] = pushNot(c, depth+1)
		}
		return flatten(KindOr, Filter{kind: KindOr, children: negated}, depth)
	case KindOr:
		negated := make([]Filter, len(inner.children))
		for i, c := range inner.children {
			negated[i] = pushNot(c, depth+1)
		}
		return flatten(KindAnd, Filter{kind: KindAnd, children: negated}, depth)
	case KindComparison:
		return Filter{kind: KindComparison, field: inner.field, op: negateOp(inner.op), value: inner.value}
	default:
		return Not(rewriteDepth(inner, depth))
	}
}

func negateOp(op Op) Op {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	default:
		return op
	}
}

// flatten collapses nested same-kind And/Or nodes into one level and drops
// duplicate children (by packed-tuple-like structural key).
func flatten(kind Kind, f Filter, depth int) Filter {
	seen := make(map[string]bool)
	var out []Filter
	var walk func(children []Filter)
	walk = func(children []Filter) {
		for _, c := range children {
			rc := rewriteDepth(c, depth+1)
			if rc.kind == kind {
				walk(rc.children)
				continue
			}
			key := structuralKey(rc)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rc)
		}
	}
	walk(f.children)
	if len(out) == 1 {
		return out[0]
	}
	return Filter{kind: kind, children: out}
}

// structuralKey is a cheap, collision-resistant-enough string identity for
// a Filter node, used only for in-process dedup within one rewrite pass.
func structuralKey(f Filter) string {
	switch f.kind {
	case KindComparison:
		return "cmp:" + f.field + ":" + string(rune(f.op)) + ":" + string(tuple.Pack(tuple.Of(f.value)))
	case KindIn:
		return "in:" + f.field + ":" + string(tuple.Pack(tuple.Tuple(f.values)))
	case KindOverlaps:
		return "ov:" + f.field + ":" + string(tuple.Pack(tuple.Of(tuple.Bool(f.lowerInf), f.lower, tuple.Bool(f.upperInf), f.upper)))
	case KindAnd, KindOr, KindNot:
		key := "g:"
		for _, c := range f.children {
			key += structuralKey(c) + "|"
		}
		return key
	default:
		return "?"
	}
}

// ToDNF expands f into disjunctive normal form (a top-level Or of Ands),
// bounded at maxDNFTerms terms — beyond that, the original (rewritten but
// un-expanded) filter is returned unchanged, since an unbounded DNF blowup
// would make planning itself the bottleneck.
func ToDNF(f Filter) Filter {
	r := Rewrite(f)
	terms := expand(r)
	if len(terms) == 0 || len(terms) > maxDNFTerms {
		return r
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return Filter{kind: KindOr, children: terms}
}

// expand returns f's disjunctive terms (each an And-or-leaf), or nil if f
// is not a bounded disjunction-distributable shape (an Or/And tree of
// comparisons/In/Overlaps).
func expand(f Filter) []Filter {
	switch f.kind {
	case KindOr:
		var out []Filter
		for _, c := range f.children {
			sub := expand(c)
			if sub == nil {
				sub = []Filter{c}
			}
			out = append(out, sub...)
			if len(out) > maxDNFTerms {
				return out
			}
		}
		return out
	case KindAnd:
		product := []Filter{{kind: KindAnd}}
		for _, c := range f.children {
			subTerms := expand(c)
			if subTerms == nil {
				subTerms = []Filter{c}
			}
			var next []Filter
			for _, p := range product {
				for _, t := range subTerms {
					merged := append(append([]Filter{}, p.children...), t)
					next = append(next, Filter{kind: KindAnd, children: merged})
					if len(next) > maxDNFTerms {
						return next
					}
				}
			}
			product = next
		}
		return product
	default:
		return []Filter{f}
	}
}
