package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/fdbrl/recordlayer/query"
	"github.com/fdbrl/recordlayer/tuple"
)

// Fingerprint computes a stable cache key for (entityName, filter, sortField,
// limit). Filters are canonicalized by query.Rewrite before hashing so that
// logically-equivalent-but-differently-shaped inputs (e.g. And(a,b) vs
// And(b,a) after flatten/dedup) share a cache entry.
func Fingerprint(entityName string, f query.Filter, sortField string, limit int) uint64 {
	canon := query.Rewrite(f)
	var sb strings.Builder
	sb.WriteString(entityName)
	sb.WriteByte(0)
	writeFilter(&sb, canon)
	sb.WriteByte(0)
	sb.WriteString(sortField)
	sb.WriteByte(0)
	fmt.Fprintf(&sb, "%d", limit)
	return xxhash.Sum64String(sb.String())
}

func writeFilter(sb *strings.Builder, f query.Filter) {
	fmt.Fprintf(sb, "(%d|%s|%d|%v|%v", f.Kind(), f.Field(), f.Op(), f.Value(), f.Values())
	if lo, inf := f.Lower(); !inf {
		fmt.Fprintf(sb, "|lo=%v", lo)
	}
	if hi, inf := f.Upper(); !inf {
		fmt.Fprintf(sb, "|hi=%v", hi)
	}
	children := append([]query.Filter(nil), f.Children()...)
	sort.Slice(children, func(i, j int) bool {
		return filterSortKey(children[i]) < filterSortKey(children[j])
	})
	for _, c := range children {
		writeFilter(sb, c)
	}
	sb.WriteByte(')')
}

func filterSortKey(f query.Filter) string {
	var sb strings.Builder
	writeFilter(&sb, f)
	return sb.String()
}

func elementKey(e tuple.Element) string {
	return string(tuple.Pack(tuple.Of(e)))
}
