package main

import (
	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/kv/memkv"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/store"
	"github.com/fdbrl/recordlayer/subspace"
)

// demoStore builds a small in-memory schema so rlctl has something to
// operate on out of the box. A real deployment replaces this with its own
// schema registration and a kv.Database pointed at an actual cluster.
func demoStore() (*store.RecordStore, error) {
	sch := schema.New(schema.Version{Major: 1})
	if err := sch.AddEntity(&schema.Entity{
		Name: "Product",
		FieldsOrdered: []schema.FieldDescriptor{
			{Name: "id", Tag: 1, Kind: schema.FieldScalar},
			{Name: "category", Tag: 2, Kind: schema.FieldScalar},
			{Name: "price", Tag: 3, Kind: schema.FieldScalar},
		},
		PrimaryKey: keyexpr.Field("id"),
	}); err != nil {
		return nil, err
	}
	if err := sch.AddIndex(schema.NewIndex("byCategory", schema.IndexValue, keyexpr.Field("category"), []string{"Product"}, nil)); err != nil {
		return nil, err
	}

	db := memkv.New()
	return store.New(db, sch, subspace.FromString("rlctl")), nil
}
