// Package planner turns a (entityName, query.Filter, sort, limit) request
// into a single physplan.Plan: rewrite the filter to a canonical form,
// generate a bounded set of candidate physical plans, cost each one against
// the statistics store, and cache the winner keyed by a stable fingerprint
// of the request.
package planner

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fdbrl/recordlayer/physplan"
	"github.com/fdbrl/recordlayer/query"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/stats"
)

// defaultCacheSize and defaultCacheTTL bound the plan cache: a modest
// number of distinct query shapes held for a short time, trading a cache
// hit's freedom from re-estimation against staleness after statistics
// change (e.g. after an online index build promotes an index to READABLE).
const (
	defaultCacheSize = 512
	defaultCacheTTL  = 5 * time.Minute
)

// Planner chooses physical plans for a schema+statistics pair. One Planner
// is typically shared across a RecordStore's lifetime.
type Planner struct {
	sch   *schema.Schema
	stats *stats.Store
	cache *expirable.LRU[uint64, cachedPlan]
}

type cachedPlan struct {
	plan  physplan.Plan
	label string
}

// New creates a Planner over sch, estimating costs from st.
func New(sch *schema.Schema, st *stats.Store) *Planner {
	return &Planner{
		sch:   sch,
		stats: st,
		cache: expirable.NewLRU[uint64, cachedPlan](defaultCacheSize, nil, defaultCacheTTL),
	}
}

// Request describes one query the planner should produce a physical plan
// for.
type Request struct {
	EntityName string
	Filter     query.Filter
	SortField  string // empty if unsorted
	Limit      int    // 0 means unbounded
}

// Result is the planner's decision, including the label of the winning
// candidate for diagnostics (see Explain).
type Result struct {
	Plan  physplan.Plan
	Label string
}

// Plan returns a physical plan for req, consulting (and populating) the
// plan cache. Equivalent requests (same entity, same filter after
// canonicalization, same sort/limit) always resolve to the same cache
// entry.
func (p *Planner) Plan(req Request) Result {
	fp := Fingerprint(req.EntityName, req.Filter, req.SortField, req.Limit)
	if cached, ok := p.cache.Get(fp); ok {
		return Result{Plan: cached.plan, Label: cached.label}
	}

	candidates := generateCandidates(p.sch, req.EntityName, req.Filter)
	best := candidates[0]
	bestCost := estimateCost(p.stats, req.EntityName, best.plan)
	for _, c := range candidates[1:] {
		cc := estimateCost(p.stats, req.EntityName, c.plan)
		if cc.less(bestCost) {
			best = c
			bestCost = cc
		}
	}

	p.cache.Add(fp, cachedPlan{plan: best.plan, label: best.label})
	return Result{Plan: best.plan, Label: best.label}
}

// Invalidate drops every cached plan. Call after a schema change (new
// index promoted to READABLE, index dropped) that could change which
// candidate plans are even valid.
func (p *Planner) Invalidate() {
	p.cache.Purge()
}

// Explain returns every candidate plan generateCandidates would consider
// for req along with its estimated cost, without consulting or populating
// the cache. Intended for tooling (e.g. cmd/rlctl) rather than the hot
// query path.
func (p *Planner) Explain(req Request) []ExplainEntry {
	candidates := generateCandidates(p.sch, req.EntityName, req.Filter)
	out := make([]ExplainEntry, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ExplainEntry{Label: c.label, Plan: c.plan, Cost: estimateCost(p.stats, req.EntityName, c.plan).total()})
	}
	return out
}

// ExplainEntry is one candidate plan with its estimated total cost.
type ExplainEntry struct {
	Label string
	Plan  physplan.Plan
	Cost  float64
}
