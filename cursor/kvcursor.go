package cursor

import (
	"context"

	"github.com/fdbrl/recordlayer/kv"
)

// kvCursor adapts a kv.Cursor (key/value pair args) to this package's
// Entry-returning Cursor shape.
type kvCursor struct {
	inner kv.Cursor
}

// FromKV wraps a kv.Cursor.
func FromKV(c kv.Cursor) Cursor {
	return &kvCursor{inner: c}
}

func (c *kvCursor) Next(ctx context.Context) (Entry, bool, error) {
	k, v, err := c.inner.Next(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	if k == nil {
		return Entry{}, false, nil
	}
	return Entry{Key: k, Value: v}, true, nil
}

func (c *kvCursor) Close() { c.inner.Close() }
