// Package protowalk decodes protobuf wire data without a schema.
//
// Messages found in the on-device stores are reverse engineered and change
// between app versions, so nothing here relies on generated types. A message
// is decoded into an ordered list of fields that can be walked by field
// number. Length-delimited fields are kept as raw bytes and re-interpreted as
// nested messages on demand.
package protowalk

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNotMessage is returned when a field cannot hold a nested message.
var ErrNotMessage = errors.New("field is not length-delimited")

// Field is a single decoded field. Scalar wire types store their value in
// Scalar, length-delimited fields and groups store their payload in Bytes.
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Scalar uint64
	Bytes  []byte
}

// Message is a decoded message in wire order. Repeated fields appear once per
// occurrence.
type Message []Field

// Decode walks b and returns every field it contains. Unknown fields are kept.
func Decode(b []byte) (Message, error) {
	var msg Message

	offset := 0

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("tag at offset %d: %w", offset, protowire.ParseError(n))
		}

		b = b[n:]
		offset += n

		field := Field{Number: num, Type: typ}

		switch typ {
		case protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			field.Scalar = v
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			field.Scalar = uint64(v)
		case protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			field.Scalar = v
		case protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			field.Bytes = v
		case protowire.StartGroupType:
			var v []byte
			v, n = protowire.ConsumeGroup(num, b)
			field.Bytes = v
		default:
			return nil, fmt.Errorf("field %d at offset %d: unexpected wire type %d", num, offset, typ)
		}

		if n < 0 {
			return nil, fmt.Errorf("field %d at offset %d: %w", num, offset, protowire.ParseError(n))
		}

		b = b[n:]
		offset += n

		msg = append(msg, field)
	}

	return msg, nil
}

// All returns every occurrence of field n.
func (m Message) All(n protowire.Number) []Field {
	var out []Field

	for _, f := range m {
		if f.Number == n {
			out = append(out, f)
		}
	}

	return out
}

// First returns the first occurrence of field n.
func (m Message) First(n protowire.Number) (Field, bool) {
	for _, f := range m {
		if f.Number == n {
			return f, true
		}
	}

	return Field{}, false
}

// Messages decodes every occurrence of field n as a nested message, skipping
// occurrences that do not decode.
func (m Message) Messages(n protowire.Number) []Message {
	var out []Message

	for _, f := range m.All(n) {
		sub, err := f.Message()
		if err != nil {
			continue
		}

		out = append(out, sub)
	}

	return out
}

// Path descends through nested messages and returns the field at the end of
// path. Each intermediate step uses the first occurrence that decodes as a
// message.
func (m Message) Path(path ...protowire.Number) (Field, bool) {
	if len(path) == 0 {
		return Field{}, false
	}

	cur := m

	for _, n := range path[:len(path)-1] {
		next, ok := cur.sub(n)
		if !ok {
			return Field{}, false
		}

		cur = next
	}

	return cur.First(path[len(path)-1])
}

// Sub returns the nested message reached by path.
func (m Message) Sub(path ...protowire.Number) (Message, bool) {
	cur := m

	for _, n := range path {
		next, ok := cur.sub(n)
		if !ok {
			return nil, false
		}

		cur = next
	}

	return cur, true
}

// String returns the string at path, or "" when absent.
func (m Message) String(path ...protowire.Number) string {
	f, ok := m.Path(path...)
	if !ok || f.Type != protowire.BytesType {
		return ""
	}

	return string(f.Bytes)
}

// Uint returns the scalar at path.
func (m Message) Uint(path ...protowire.Number) (uint64, bool) {
	f, ok := m.Path(path...)
	if !ok || !f.IsScalar() {
		return 0, false
	}

	return f.Scalar, true
}

func (m Message) sub(n protowire.Number) (Message, bool) {
	for _, f := range m.All(n) {
		sub, err := f.Message()
		if err == nil {
			return sub, true
		}
	}

	return nil, false
}

// IsScalar reports whether the field carries a varint or fixed-width value.
func (f Field) IsScalar() bool {
	switch f.Type {
	case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type:
		return true
	default:
		return false
	}
}

// Message re-interprets the field payload as a nested message.
func (f Field) Message() (Message, error) {
	if f.Type != protowire.BytesType && f.Type != protowire.StartGroupType {
		return nil, ErrNotMessage
	}

	return Decode(f.Bytes)
}

// Int returns the scalar as a signed integer using two's complement, which is
// how int32 and int64 fields are encoded.
func (f Field) Int() int64 {
	return int64(f.Scalar)
}

// Sint returns the scalar decoded as a zig-zag sint32/sint64.
func (f Field) Sint() int64 {
	return protowire.DecodeZigZag(f.Scalar)
}

// String returns the payload of a length-delimited field.
func (f Field) String() string {
	return string(f.Bytes)
}
