// Package cursor implements lazy, cancellable, back-pressured combinators
// over kv.Cursor-shaped sources. physplan's IndexScan and FullScan read
// their ranges through FromKV and Collect; Intersection, InJoin and
// FilterPlan work on the materialized primary-key slices those return.
// Each combinator here only calls the next underlying Next()
// the moment its own caller asks for one, the same pull-based shape
// kv.Cursor itself already has.
package cursor

import "context"

// Entry is one (key, value) pulled from a Cursor.
type Entry struct {
	Key   []byte
	Value []byte
}

// Cursor is the minimal pull interface every combinator here both consumes
// and produces.
type Cursor interface {
	// Next returns the next entry, or (Entry{}, false, nil) at end of
	// range.
	Next(ctx context.Context) (Entry, bool, error)
	Close()
}

// sliceCursor adapts an in-memory slice (used by tests and by maintainers
// that already materialized a small result set).
type sliceCursor struct {
	entries []Entry
	pos     int
}

// FromSlice wraps entries as a Cursor.
func FromSlice(entries []Entry) Cursor {
	return &sliceCursor{entries: entries}
}

func (c *sliceCursor) Next(ctx context.Context) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	if c.pos >= len(c.entries) {
		return Entry{}, false, nil
	}
	e := c.entries[c.pos]
	c.pos++
	return e, true, nil
}

func (c *sliceCursor) Close() {}

// mapCursor lazily transforms each entry.
type mapCursor struct {
	src Cursor
	fn  func(Entry) (Entry, bool, error)
}

// Map applies fn to every entry src produces, dropping entries for which fn
// returns keep=false.
func Map(src Cursor, fn func(Entry) (Entry, bool, error)) Cursor {
	return &mapCursor{src: src, fn: fn}
}

func (c *mapCursor) Next(ctx context.Context) (Entry, bool, error) {
	for {
		e, ok, err := c.src.Next(ctx)
		if err != nil || !ok {
			return Entry{}, ok, err
		}
		out, keep, err := c.fn(e)
		if err != nil {
			return Entry{}, false, err
		}
		if keep {
			return out, true, nil
		}
	}
}

func (c *mapCursor) Close() { c.src.Close() }

// filterCursor lazily drops entries fn rejects.
type filterCursor struct {
	src Cursor
	fn  func(Entry) (bool, error)
}

// Filter keeps only entries for which fn returns true.
func Filter(src Cursor, fn func(Entry) (bool, error)) Cursor {
	return &filterCursor{src: src, fn: fn}
}

func (c *filterCursor) Next(ctx context.Context) (Entry, bool, error) {
	for {
		e, ok, err := c.src.Next(ctx)
		if err != nil || !ok {
			return Entry{}, ok, err
		}
		keep, err := c.fn(e)
		if err != nil {
			return Entry{}, false, err
		}
		if keep {
			return e, true, nil
		}
	}
}

func (c *filterCursor) Close() { c.src.Close() }

// limitCursor caps the number of entries returned.
type limitCursor struct {
	src     Cursor
	remain  int
}

// Limit returns at most n entries from src.
func Limit(src Cursor, n int) Cursor {
	return &limitCursor{src: src, remain: n}
}

func (c *limitCursor) Next(ctx context.Context) (Entry, bool, error) {
	if c.remain <= 0 {
		return Entry{}, false, nil
	}
	e, ok, err := c.src.Next(ctx)
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	c.remain--
	return e, true, nil
}

func (c *limitCursor) Close() { c.src.Close() }

// Collect drains cur into a slice, bounded by ctx cancellation.
func Collect(ctx context.Context, cur Cursor) ([]Entry, error) {
	var out []Entry
	for {
		e, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}
