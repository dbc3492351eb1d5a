package memkv

import (
	"context"

	"github.com/fdbrl/recordlayer/kv"
	"github.com/google/btree"
)

// cursor materializes the entries of [begin, end) up front from an
// immutable B-tree snapshot; simple and correct for a reference
// implementation, since memkv trees are cheap to clone (copy-on-write
// B-tree) and test fixtures are small.
type cursor struct {
	entries []entry
	pos     int
}

func newCursor(tree *btree.BTreeG[entry], begin, end []byte, reverse bool) *cursor {
	c := &cursor{}
	tree.AscendRange(rangeLow(begin), rangeHigh(end), func(e entry) bool {
		c.entries = append(c.entries, e)
		return true
	})
	if reverse {
		for i, j := 0, len(c.entries)-1; i < j; i, j = i+1, j-1 {
			c.entries[i], c.entries[j] = c.entries[j], c.entries[i]
		}
	}
	return c
}

func (c *cursor) Next(ctx context.Context) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, kv.ErrCancelled
	}
	if c.pos >= len(c.entries) {
		return nil, nil, nil
	}
	e := c.entries[c.pos]
	c.pos++
	return e.key, e.value, nil
}

func (c *cursor) Close() {}
