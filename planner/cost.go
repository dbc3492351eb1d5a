package planner

import (
	"github.com/fdbrl/recordlayer/physplan"
	"github.com/fdbrl/recordlayer/stats"
)

// Cost estimation constants. Selectivity is the fraction of rows a
// predicate is expected to retain when no histogram is available; ioPerRow
// models one KV read per row, with full scans charged a heavier constant
// since they touch every record rather than an index entry plus a fetch.
const (
	equalitySelectivity = 0.1
	rangeSelectivity    = 0.3
	indexIOPerRow       = 1.0
	fetchIOPerRow       = 2.0 // fetching a full record for residual evaluation costs more than reading one index entry
	fullScanIOPerRow    = 10.0
	cpuPerRow           = 0.1
)

// cost is the estimated resource consumption of one physical plan,
// expressed as separate IO/CPU components so selection can tie-break on IO
// before falling back to row count.
type cost struct {
	rows    float64
	ioCost  float64
	cpuCost float64
}

func (c cost) total() float64 { return c.ioCost + c.cpuCost }

// less orders costs for plan selection: lower total cost wins; ties break
// on lower IO cost, then on fewer estimated rows.
func (c cost) less(o cost) bool {
	if c.total() != o.total() {
		return c.total() < o.total()
	}
	if c.ioCost != o.ioCost {
		return c.ioCost < o.ioCost
	}
	return c.rows < o.rows
}

// estimateCost walks plan, consulting st for row counts and histograms
// where available and falling back to the selectivity constants above.
func estimateCost(st *stats.Store, entityName string, plan physplan.Plan) cost {
	ts := st.Table(entityName)
	baseRows := float64(ts.RowCount())
	if baseRows <= 0 {
		baseRows = 1000 // no stats sampled yet: assume a modest table
	}

	switch plan.Kind() {
	case physplan.KindFullScan:
		return cost{rows: baseRows, ioCost: baseRows * fullScanIOPerRow, cpuCost: baseRows * cpuPerRow}

	case physplan.KindIndexScan:
		rows := estimateIndexRows(st, entityName, plan.IndexName(), baseRows)
		return cost{rows: rows, ioCost: rows * indexIOPerRow, cpuCost: rows * cpuPerRow}

	case physplan.KindInJoin:
		rows := float64(len(plan.InValues())) * baseRows * equalitySelectivity
		return cost{rows: rows, ioCost: rows * indexIOPerRow, cpuCost: rows * cpuPerRow}

	case physplan.KindIntersection:
		// The true output is bounded by the smallest child; estimate each
		// child independently and take the minimum row estimate, but sum
		// the IO since every child is actually scanned.
		var minRows float64 = -1
		var ioSum, cpuSum float64
		for _, c := range plan.Children() {
			cc := estimateCost(st, entityName, c)
			ioSum += cc.ioCost
			cpuSum += cc.cpuCost
			if minRows < 0 || cc.rows < minRows {
				minRows = cc.rows
			}
		}
		if minRows < 0 {
			minRows = 0
		}
		return cost{rows: minRows, ioCost: ioSum, cpuCost: cpuSum}

	case physplan.KindNearestNeighbors:
		rows := float64(plan.K())
		return cost{rows: rows, ioCost: rows * indexIOPerRow, cpuCost: rows * cpuPerRow * 2}

	case physplan.KindEmpty:
		return cost{rows: 0, ioCost: 0, cpuCost: 0}

	case physplan.KindFilter:
		child := estimateCost(st, entityName, plan.Children()[0])
		// The residual filter is evaluated in memory against each
		// candidate's fetched record: one extra full-record fetch plus CPU
		// per row, output rows reduced by a flat selectivity constant.
		rows := child.rows * rangeSelectivity
		return cost{rows: rows, ioCost: child.ioCost + child.rows*fetchIOPerRow, cpuCost: child.cpuCost + child.rows*cpuPerRow}

	default:
		return cost{rows: baseRows, ioCost: baseRows * fullScanIOPerRow, cpuCost: baseRows * cpuPerRow}
	}
}

func estimateIndexRows(st *stats.Store, entityName, indexName string, baseRows float64) float64 {
	ts := st.Table(entityName)
	if h, ok := ts.Histogram(indexName); ok && h.Total() > 0 {
		// Without the concrete equality value in scope here, fall back to
		// an average per-bucket estimate: total rows divided across the
		// buckets actually populated.
		buckets := h.Buckets()
		if len(buckets) > 0 {
			return float64(h.Total()) / float64(len(buckets))
		}
	}
	return baseRows * equalitySelectivity
}
