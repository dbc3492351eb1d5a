// Package store implements RecordStore: save/fetch/delete/scan of records,
// with index maintenance driven by diffing the old and new record under
// the caller's transaction. It follows the teacher's View/Update pattern
// (erigon-lib/kv/kv_interface.go: run a closure inside a transaction,
// commit on success) for its own optional-caller-transaction methods.
package store

import (
	"fmt"

	"github.com/fdbrl/recordlayer/keyexpr"
	"github.com/fdbrl/recordlayer/recordcodec"
	"github.com/fdbrl/recordlayer/schema"
	"github.com/fdbrl/recordlayer/tuple"
)

// GenericRecord is the map-based keyexpr.Record this package returns from
// Fetch/Scan. An application's concrete Go record type is out of this
// module's scope (spec.md §1); GenericRecord is the smallest thing that
// satisfies keyexpr.Record and round-trips through recordcodec.
type GenericRecord struct {
	Type   string
	Values map[string]keyexpr.FieldValue
}

func (r *GenericRecord) RecordType() string { return r.Type }

func (r *GenericRecord) Field(name string) (keyexpr.FieldValue, bool) {
	fv, ok := r.Values[name]
	return fv, ok
}

const (
	fieldEncodingValue byte = 0
	fieldEncodingRange byte = 1
)

// encodeFieldValue turns a FieldValue into recordcodec bytes: a leading
// kind byte (plain value vs range) followed by a packed tuple.
func encodeFieldValue(fv keyexpr.FieldValue) []byte {
	if fv.IsRange {
		body := tuple.Of(
			tuple.Bool(fv.Lower.Infinite),
			boundValueOrNull(fv.Lower),
			tuple.Int(int64(fv.LowerType)),
			tuple.Bool(fv.Upper.Infinite),
			boundValueOrNull(fv.Upper),
			tuple.Int(int64(fv.UpperType)),
		)
		return append([]byte{fieldEncodingRange}, tuple.Pack(body)...)
	}
	return append([]byte{fieldEncodingValue}, tuple.Pack(tuple.Tuple(fv.Elements))...)
}

func boundValueOrNull(b keyexpr.Bound) tuple.Element {
	if b.Infinite {
		return tuple.Null()
	}
	return b.Value
}

// decodeFieldValue is the inverse of encodeFieldValue.
func decodeFieldValue(name string, data []byte) (keyexpr.FieldValue, error) {
	if len(data) == 0 {
		return keyexpr.FieldValue{}, fmt.Errorf("store: empty field payload for %q", name)
	}
	kind, body := data[0], data[1:]
	t, err := tuple.Unpack(body)
	if err != nil {
		return keyexpr.FieldValue{}, err
	}
	switch kind {
	case fieldEncodingValue:
		return keyexpr.FieldValue{Name: name, Elements: []tuple.Element(t)}, nil
	case fieldEncodingRange:
		if len(t) != 6 {
			return keyexpr.FieldValue{}, fmt.Errorf("store: malformed range field %q", name)
		}
		fv := keyexpr.FieldValue{
			Name:      name,
			IsRange:   true,
			LowerType: keyexpr.BoundaryType(t[2].AsInt()),
			UpperType: keyexpr.BoundaryType(t[5].AsInt()),
		}
		fv.Lower = keyexpr.Bound{Infinite: t[0].AsBool()}
		if !fv.Lower.Infinite {
			fv.Lower.Value = t[1]
		}
		fv.Upper = keyexpr.Bound{Infinite: t[3].AsBool()}
		if !fv.Upper.Infinite {
			fv.Upper.Value = t[4]
		}
		return fv, nil
	default:
		return keyexpr.FieldValue{}, fmt.Errorf("store: unknown field encoding %d for %q", kind, name)
	}
}

// EncodeRecord serializes every field of rec (an entity's declared field
// set, not just the ones present) through recordcodec, skipping fields the
// record has no value for (absent optional fields).
func EncodeRecord(entity *schema.Entity, rec keyexpr.Record) ([]byte, error) {
	var fields []recordcodec.Field
	for _, fd := range entity.FieldsOrdered {
		fv, ok := rec.Field(fd.Name)
		if !ok {
			continue
		}
		fields = append(fields, recordcodec.Field{Tag: fd.Tag, Wire: recordcodec.WireBytes, Bytes: encodeFieldValue(fv)})
	}
	return recordcodec.Encode(fields), nil
}

// DecodeRecord parses buf back into a GenericRecord for entity.
func DecodeRecord(entity *schema.Entity, buf []byte) (*GenericRecord, error) {
	decoded, err := recordcodec.Decode(buf)
	if err != nil {
		return nil, err
	}
	tagToName := make(map[uint32]string, len(entity.FieldsOrdered))
	for _, fd := range entity.FieldsOrdered {
		tagToName[fd.Tag] = fd.Name
	}
	rec := &GenericRecord{Type: entity.Name, Values: make(map[string]keyexpr.FieldValue, len(decoded))}
	for _, f := range decoded {
		name, ok := tagToName[f.Tag]
		if !ok {
			continue // unknown tag: forward-compatible skip
		}
		fv, err := decodeFieldValue(name, f.Bytes)
		if err != nil {
			return nil, err
		}
		rec.Values[name] = fv
	}
	return rec, nil
}
