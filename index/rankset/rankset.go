// Package rankset implements a persistent ranked set for RANK indexes:
// insert/remove a tuple, then answer "what is this value's rank" and "what
// value holds rank N". No pack repo ships a ranked skip-list, so this is
// built in the teacher's concrete-struct idiom directly on google/btree.
//
// google/btree does not expose subtree-size augmentation hooks (unlike a
// real order-statistics tree), so Rank and Nth walk the tree with
// AscendLessThan/Ascend and a running counter: O(n) instead of O(log n). This
// is the documented simplification; a production RANK index would carry
// its own augmented tree or ask the backing store for a count directly.
package rankset

import (
	"github.com/fdbrl/recordlayer/tuple"
	"github.com/google/btree"
)

type elem struct {
	value tuple.Tuple
}

func less(a, b elem) bool { return tuple.Compare(a.value, b.value) < 0 }

// Set is an ordered multiset of tuples (primary-key-suffixed, so it behaves
// as a set even when the ranked value itself repeats across records).
type Set struct {
	tree *btree.BTreeG[elem]
}

// New creates an empty ranked set.
func New() *Set {
	return &Set{tree: btree.NewG[elem](32, less)}
}

// Insert adds v.
func (s *Set) Insert(v tuple.Tuple) {
	s.tree.ReplaceOrInsert(elem{value: v})
}

// Remove deletes v if present.
func (s *Set) Remove(v tuple.Tuple) {
	s.tree.Delete(elem{value: v})
}

// Len returns the number of elements.
func (s *Set) Len() int { return s.tree.Len() }

// Rank returns the 0-based rank of v (the count of elements strictly less
// than v), and whether v itself is a member.
func (s *Set) Rank(v tuple.Tuple) (rank int, found bool) {
	target := elem{value: v}
	s.tree.AscendLessThan(target, func(e elem) bool {
		rank++
		return true
	})
	_, found = s.tree.Get(target)
	return rank, found
}

// Nth returns the value at 0-based rank n, or ok=false if n is out of
// range.
func (s *Set) Nth(n int) (tuple.Tuple, bool) {
	if n < 0 || n >= s.tree.Len() {
		return nil, false
	}
	var result tuple.Tuple
	i := 0
	found := false
	s.tree.Ascend(func(e elem) bool {
		if i == n {
			result = e.value
			found = true
			return false
		}
		i++
		return true
	})
	return result, found
}

// RangeByRank returns the values whose 0-based rank falls in [lo, hi).
func (s *Set) RangeByRank(lo, hi int) []tuple.Tuple {
	if lo < 0 {
		lo = 0
	}
	var out []tuple.Tuple
	i := 0
	s.tree.Ascend(func(e elem) bool {
		if i >= hi {
			return false
		}
		if i >= lo {
			out = append(out, e.value)
		}
		i++
		return true
	})
	return out
}
