package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fdbrl/recordlayer/health"
	"github.com/fdbrl/recordlayer/indexer"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/scrub"
	"github.com/fdbrl/recordlayer/store"
)

// Runner holds the record store and shared configuration rlctl's
// subcommands operate against. A real deployment constructs st from its
// application's schema and kv.Database (FDB or otherwise); this binary's
// main.go wires a small demo schema over kv/memkv so the command tree is
// runnable standalone, the same way a dev/ops tool ships a "try it" path
// alongside the wiring an operator would point at production.
type Runner struct {
	st *store.RecordStore
	tr *health.Tracker

	shardSize int
	throttle  time.Duration
	batchSize int
}

func (r *Runner) resolveIndex(name string) (*schema.Index, error) {
	idx, ok := r.st.Schema().Index(name)
	if !ok {
		return nil, fmt.Errorf("rlctl: no such index %q", name)
	}
	return idx, nil
}

// entityFor returns the entity an index admin command should run against:
// an explicit --entity flag if given, else the index's sole declared
// record type when it has exactly one.
func entityFor(idx *schema.Index, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if len(idx.RecordTypes) == 1 {
		return idx.RecordTypes[0], nil
	}
	return "", fmt.Errorf("rlctl: index %q spans multiple record types, pass --entity", idx.Name)
}

func (r *Runner) disable(name string) error {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return err
	}
	return idx.SetState(schema.StateDisabled)
}

func (r *Runner) enable(name string) error {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return err
	}
	return idx.SetState(schema.StateWriteOnly)
}

func (r *Runner) makeReadable(name string) error {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return err
	}
	return idx.SetState(schema.StateReadable)
}

func (r *Runner) buildIndex(ctx context.Context, name, entity string) (indexer.Result, error) {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return indexer.Result{}, err
	}
	ent, err := entityFor(idx, entity)
	if err != nil {
		return indexer.Result{}, err
	}
	b := indexer.NewBuilder(r.st, idx, ent, indexer.Options{
		ShardSize: r.shardSize,
		Throttle:  r.throttle,
	})
	return b.Build(ctx)
}

func (r *Runner) rebuildIndex(ctx context.Context, name, entity string) error {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return err
	}
	ent, err := entityFor(idx, entity)
	if err != nil {
		return err
	}
	b := indexer.NewBuilder(r.st, idx, ent, indexer.Options{ShardSize: r.shardSize, Throttle: r.throttle})
	return b.Rebuild(ctx)
}

func (r *Runner) scrubDangling(ctx context.Context, name string, repair bool) (scrub.Metrics, error) {
	if _, err := r.resolveIndex(name); err != nil {
		return scrub.Metrics{}, err
	}
	return scrub.New(r.st).ScrubDangling(ctx, name, scrub.Options{BatchSize: r.batchSize, Repair: repair})
}

func (r *Runner) scrubMissing(ctx context.Context, name string, repair bool) (scrub.Metrics, error) {
	if _, err := r.resolveIndex(name); err != nil {
		return scrub.Metrics{}, err
	}
	return scrub.New(r.st).ScrubMissing(ctx, name, scrub.Options{BatchSize: r.batchSize, Repair: repair})
}

func (r *Runner) status(name string) (schema.IndexState, health.Snapshot, error) {
	idx, err := r.resolveIndex(name)
	if err != nil {
		return 0, health.Snapshot{}, err
	}
	return idx.State(), r.tr.Snapshot(name), nil
}
