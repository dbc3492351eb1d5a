package physplan

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/fdbrl/recordlayer/cursor"
	"github.com/fdbrl/recordlayer/health"
	"github.com/fdbrl/recordlayer/index"
	"github.com/fdbrl/recordlayer/kv"
	"github.com/fdbrl/recordlayer/query"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/store"
	"github.com/fdbrl/recordlayer/tuple"
)

const maxNearestNeighborAttempts = 5
const oversamplingFactor = 3

// Execute runs plan against tx using st for subspace/schema lookups,
// returning the matching primary keys in the plan's natural emission
// order. tr may be nil, which disables the NearestNeighbors breaker check
// entirely (every other plan kind ignores it).
func Execute(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan, tr *health.Tracker) ([]tuple.Tuple, error) {
	switch plan.kind {
	case KindIndexScan:
		return execIndexScan(ctx, st, tx, plan)
	case KindIntersection:
		return execIntersection(ctx, st, tx, plan, tr)
	case KindInJoin:
		return execInJoin(ctx, st, tx, plan)
	case KindNearestNeighbors:
		return execNearestNeighbors(ctx, st, tx, plan, tr)
	case KindFilter:
		return execFilter(ctx, st, tx, plan, tr)
	case KindFullScan:
		return execFullScan(ctx, st, tx, plan)
	case KindEmpty:
		return nil, nil
	default:
		return nil, fmt.Errorf("physplan: unknown plan kind %d", plan.kind)
	}
}

func execIndexScan(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan) ([]tuple.Tuple, error) {
	sub := st.IndexSubspace(plan.indexName)
	if plan.rcSide != "" {
		sub = sub.Sub(tuple.Str(plan.rcSide))
	}

	subBegin, subEnd := sub.Range()
	begin, end := subBegin, subEnd
	if !plan.rcOpenBegin {
		begin = sub.Pack(plan.beginKey)
	}
	if !plan.rcOpenEnd {
		end = sub.Pack(plan.endKey)
	}
	c, err := tx.Range(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// A RANGE_COMPONENT sub-index entry is always {boundValue, pk...}: one
	// element for the bound regardless of whether this scan's own begin/end
	// is open, unlike a plain IndexScan whose prefix length is exactly
	// len(beginKey).
	prefixLen := len(plan.beginKey)
	if plan.rcSide != "" {
		prefixLen = 1
	}
	entries, err := cursor.Collect(ctx, cursor.FromKV(c))
	if err != nil {
		return nil, err
	}
	var out []tuple.Tuple
	for _, e := range entries {
		full, err := sub.Unpack(e.Key)
		if err != nil {
			return nil, err
		}
		if len(full) < prefixLen {
			continue
		}
		out = append(out, full[prefixLen:])
	}
	if plan.rcSide != "" {
		// A RANGE_COMPONENT sub-index entry's key orders by (boundValue, pk):
		// scanning a window spanning more than one distinct bound value (the
		// lo/hi overlaps candidate's unbounded side) yields pks grouped by
		// value rather than globally ascending, which Intersection's merge
		// requires of every child.
		sort.Slice(out, func(i, j int) bool { return tuple.Compare(out[i], out[j]) < 0 })
	}
	return out, nil
}

// heapItem/pkHeap implement the ascending-by-pk min-heap Intersection merges
// over. Each child contributes its already-sorted (IndexScan output is
// KV-order, hence pk-order) slice.
type heapItem struct {
	pk       tuple.Tuple
	childIdx int
	posIdx   int
}

type pkHeap []heapItem

func (h pkHeap) Len() int            { return len(h) }
func (h pkHeap) Less(i, j int) bool  { return tuple.Compare(h[i].pk, h[j].pk) < 0 }
func (h pkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pkHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *pkHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func execIntersection(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan, tr *health.Tracker) ([]tuple.Tuple, error) {
	childResults := make([][]tuple.Tuple, len(plan.children))
	for i, c := range plan.children {
		r, err := Execute(ctx, st, tx, c, tr)
		if err != nil {
			return nil, err
		}
		childResults[i] = r
	}
	if len(childResults) == 0 {
		return nil, nil
	}

	h := &pkHeap{}
	heap.Init(h)
	for i, r := range childResults {
		if len(r) > 0 {
			heap.Push(h, heapItem{pk: r[0], childIdx: i, posIdx: 0})
		}
	}

	var out []tuple.Tuple
	for h.Len() > 0 {
		min := (*h)[0].pk
		matchCount := 0
		var sameGroup []heapItem
		for h.Len() > 0 && tuple.Compare((*h)[0].pk, min) == 0 {
			item := heap.Pop(h).(heapItem)
			sameGroup = append(sameGroup, item)
			matchCount++
		}
		if matchCount == len(childResults) {
			out = append(out, min)
		}
		for _, item := range sameGroup {
			next := item.posIdx + 1
			if next < len(childResults[item.childIdx]) {
				heap.Push(h, heapItem{pk: childResults[item.childIdx][next], childIdx: item.childIdx, posIdx: next})
			}
		}
	}
	return out, nil
}

func execInJoin(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan) ([]tuple.Tuple, error) {
	seenValues := mapset.NewSet[string]()
	seenPks := mapset.NewSet[string]()
	var out []tuple.Tuple
	for _, v := range plan.inValues {
		key := string(tuple.Pack(tuple.Of(v)))
		if seenValues.Contains(key) {
			continue
		}
		seenValues.Add(key)

		sub := Plan{kind: KindIndexScan, indexName: plan.indexName, beginKey: tuple.Of(v), endKey: extendForEquality(tuple.Of(v))}
		pks, err := execIndexScan(ctx, st, tx, sub)
		if err != nil {
			return nil, err
		}
		for _, pk := range pks {
			pkKey := string(tuple.Pack(pk))
			if seenPks.Contains(pkKey) {
				continue
			}
			seenPks.Add(pkKey)
			out = append(out, pk)
		}
	}
	return out, nil
}

// ExtendForEquality turns an equality-point tuple prefix into a tuple that
// sorts strictly after every real entry sharing that prefix (indexed value
// || primary key), by appending a versionstamp element with every byte set
// to 0xFF — the highest-sorting element kind at its highest value, per the
// tag-table ordering tuple.Compare enforces. Exported so the planner can
// build the same equality-scan bound when constructing IndexScan/InJoin
// candidates.
func ExtendForEquality(prefix tuple.Tuple) tuple.Tuple {
	var maxStamp tuple.Versionstamp
	for i := range maxStamp.TxnVersion {
		maxStamp.TxnVersion[i] = 0xFF
	}
	maxStamp.UserVer = 0xFFFF
	return append(append(tuple.Tuple{}, prefix...), tuple.VersionstampElem(maxStamp))
}

func extendForEquality(prefix tuple.Tuple) tuple.Tuple { return ExtendForEquality(prefix) }

type nearestScanner interface {
	ScanNearest(ctx context.Context, tx kv.Tx, query []float64, k int) ([]index.NearestResult, error)
}

func execNearestNeighbors(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan, tr *health.Tracker) ([]tuple.Tuple, error) {
	idx, ok := st.Schema().Index(plan.vectorIndex)
	if !ok {
		return nil, fmt.Errorf("physplan: no such index %q", plan.vectorIndex)
	}
	if idx.Kind != schema.IndexVector {
		return nil, fmt.Errorf("physplan: index %q is not a VECTOR index", plan.vectorIndex)
	}
	m, err := index.NewMaintainer(idx, st.IndexSubspace(plan.vectorIndex))
	if err != nil {
		return nil, err
	}
	vm, ok := m.(nearestScanner)
	if !ok {
		return nil, fmt.Errorf("physplan: index %q maintainer does not support nearest-neighbor scans", plan.vectorIndex)
	}

	if tr != nil {
		if allowed, _ := tr.ShouldUse(plan.vectorIndex); !allowed {
			// Breaker open: degrade straight to the flat-scan fallback
			// instead of failing the query outright, and skip the
			// success/failure bookkeeping entirely so a query shaped like
			// this one doesn't retry the gated path until ShouldUse itself
			// allows it again.
			return flatScanNearest(ctx, tx, vm, plan)
		}
	}

	k := plan.k
	attempt := 0
	for {
		attempt++
		results, err := vm.ScanNearest(ctx, tx, plan.queryVector, k)
		if err != nil {
			if tr != nil {
				tr.RecordFailure(plan.vectorIndex, err)
			}
			return nil, err
		}
		if len(results) >= plan.k || attempt >= maxNearestNeighborAttempts {
			if tr != nil {
				tr.RecordSuccess(plan.vectorIndex)
			}
			out := make([]tuple.Tuple, 0, plan.k)
			for i, r := range results {
				if i >= plan.k {
					break
				}
				out = append(out, r.PrimaryKey)
			}
			return out, nil
		}
		k *= oversamplingFactor
	}
}

// flatScanNearest serves a NearestNeighbors plan with a single unoversampled
// scan, no breaker bookkeeping, and no retry loop — the degraded path used
// once a vector index's own breaker has ShouldUse refuse the gated path.
func flatScanNearest(ctx context.Context, tx kv.Tx, vm nearestScanner, plan Plan) ([]tuple.Tuple, error) {
	results, err := vm.ScanNearest(ctx, tx, plan.queryVector, plan.k)
	if err != nil {
		return nil, err
	}
	out := make([]tuple.Tuple, 0, len(results))
	for _, r := range results {
		out = append(out, r.PrimaryKey)
	}
	return out, nil
}

func execFilter(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan, tr *health.Tracker) ([]tuple.Tuple, error) {
	pks, err := Execute(ctx, st, tx, plan.children[0], tr)
	if err != nil {
		return nil, err
	}
	var out []tuple.Tuple
	for _, pk := range pks {
		ok, err := matchesResidual(ctx, st, tx, plan, pk)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pk)
		}
	}
	return out, nil
}

func matchesResidual(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan, pk tuple.Tuple) (bool, error) {
	rec, found, err := st.Fetch(ctx, tx, plan.entityName, pk)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return query.Matches(plan.residual, rec)
}

func execFullScan(ctx context.Context, st *store.RecordStore, tx kv.Tx, plan Plan) ([]tuple.Tuple, error) {
	sub := st.RecordSubspace(plan.entityName)
	begin, end := sub.Range()
	c, err := tx.Range(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	entries, err := cursor.Collect(ctx, cursor.FromKV(c))
	if err != nil {
		return nil, err
	}
	var out []tuple.Tuple
	for _, e := range entries {
		pk, err := sub.Unpack(e.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, nil
}
