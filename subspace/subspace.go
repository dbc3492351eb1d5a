// Package subspace implements the byte-prefix namespacing every other
// package in this module builds keys through: Subspace.Pack(tuple) = prefix
// || tuple.Pack(t), and Subspace.Range() is the canonical half-open interval
// [prefix, prefix||0xFF) that covers every key under the prefix.
package subspace

import (
	"bytes"

	"github.com/fdbrl/recordlayer/tuple"
)

// Subspace is an opaque byte prefix.
type Subspace struct {
	prefix []byte
}

// New creates a root subspace from a raw byte prefix, e.g. the application's
// root subspace S from SPEC_FULL.md §6.
func New(prefix []byte) Subspace {
	return Subspace{prefix: append([]byte(nil), prefix...)}
}

// FromString is a convenience constructor for ASCII prefixes like "S/R".
func FromString(prefix string) Subspace {
	return New([]byte(prefix))
}

// Sub returns a child subspace with an extra tuple-encoded path component,
// e.g. root.Sub(tuple.Str("R"), tuple.Str(entityName)).
func (s Subspace) Sub(elems ...tuple.Element) Subspace {
	return Subspace{prefix: append(append([]byte(nil), s.prefix...), tuple.Pack(elems)...)}
}

// Bytes returns the raw prefix.
func (s Subspace) Bytes() []byte { return append([]byte(nil), s.prefix...) }

// Pack encodes t and prepends the subspace prefix.
func (s Subspace) Pack(t tuple.Tuple) []byte {
	return append(append([]byte(nil), s.prefix...), tuple.Pack(t)...)
}

// Unpack strips the subspace prefix from key and decodes the remainder as a
// Tuple. It returns an error if key does not start with the prefix.
func (s Subspace) Unpack(key []byte) (tuple.Tuple, error) {
	if !bytes.HasPrefix(key, s.prefix) {
		return nil, &KeyOutsideSubspaceError{Prefix: s.prefix, Key: key}
	}
	return tuple.Unpack(key[len(s.prefix):])
}

// Contains reports whether key falls within s.Range().
func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns the canonical half-open byte interval [begin, end) covering
// every key under this subspace: end = begin || 0xFF.
func (s Subspace) Range() (begin, end []byte) {
	begin = append([]byte(nil), s.prefix...)
	end = append(append([]byte(nil), s.prefix...), 0xFF)
	return begin, end
}

// KeyOutsideSubspaceError is returned by Unpack when key does not carry the
// subspace's prefix.
type KeyOutsideSubspaceError struct {
	Prefix, Key []byte
}

func (e *KeyOutsideSubspaceError) Error() string {
	return "subspace: key does not start with subspace prefix"
}
