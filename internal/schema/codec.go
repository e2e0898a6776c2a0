package schema

import (
	"fmt"
	"math"
)

// Wire encoding, per field type:
//
//	int     zigzag varint
//	float   64 raw bits
//	bool    1 bit
//	string  uvarint byte length + bytes
//	bytes   uvarint byte length + bytes
//	ref     1 presence bit; if set, 64-bit entity + 32-bit offset
//	struct  fields in declared order
//	list    uvarint count + elements
//
// Refs use fixed-width fields so the bit span of any value is a pure function
// of its content, which keeps re-decode of captured sub-ranges exact.

// DecodeValue decodes one value of type ft from r. The returned value's
// BitOff/BitLen describe the span consumed, relative to r's buffer.
func DecodeValue(r *BitReader, ft *FieldType) (Value, error) {
	start := r.Pos()
	v := Value{Kind: ft.Kind}
	var err error
	switch ft.Kind {
	case KindInt:
		v.Int, err = r.ReadVarint()
	case KindFloat:
		var bits uint64
		bits, err = r.ReadBits(64)
		if err == nil {
			v.Float = math.Float64frombits(bits)
		}
	case KindBool:
		v.Bool, err = r.ReadBit()
	case KindString:
		var b []byte
		b, err = decodeLenBytes(r)
		if err == nil {
			v.Str = string(b)
		}
	case KindBytes:
		v.Bytes, err = decodeLenBytes(r)
	case KindRef:
		var present bool
		present, err = r.ReadBit()
		if err == nil && present {
			var ent, off uint64
			if ent, err = r.ReadBits(64); err == nil {
				if off, err = r.ReadBits(32); err == nil {
					v.Ref = Ref{Entity: int64(ent), Offset: uint32(off)}
				}
			}
		}
	case KindStruct:
		v.Fields = make([]Value, len(ft.Fields))
		for i := range ft.Fields {
			if v.Fields[i], err = DecodeValue(r, &ft.Fields[i]); err != nil {
				break
			}
		}
	case KindList:
		var n uint64
		if n, err = r.ReadUvarint(); err == nil {
			if n > uint64(r.Remaining()) {
				// Every element costs at least one bit.
				return v, fmt.Errorf("list count %d exceeds remaining input", n)
			}
			v.Elems = make([]Value, n)
			for i := range v.Elems {
				if v.Elems[i], err = DecodeValue(r, ft.Elem); err != nil {
					break
				}
			}
		}
	default:
		err = fmt.Errorf("unknown field kind %d", ft.Kind)
	}
	if err != nil {
		return v, err
	}
	v.BitOff = start
	v.BitLen = r.Pos() - start
	return v, nil
}

// EncodeValue writes v, which must match ft, to w.
func EncodeValue(w *BitWriter, ft *FieldType, v Value) error {
	if v.Kind != ft.Kind {
		return fmt.Errorf("value kind %s does not match field kind %s", v.Kind, ft.Kind)
	}
	switch ft.Kind {
	case KindInt:
		w.WriteVarint(v.Int)
	case KindFloat:
		w.WriteBits(math.Float64bits(v.Float), 64)
	case KindBool:
		w.WriteBit(v.Bool)
	case KindString:
		w.WriteUvarint(uint64(len(v.Str)))
		w.WriteBytes([]byte(v.Str))
	case KindBytes:
		w.WriteUvarint(uint64(len(v.Bytes)))
		w.WriteBytes(v.Bytes)
	case KindRef:
		if v.Ref.IsNull() {
			w.WriteBit(false)
		} else {
			w.WriteBit(true)
			w.WriteBits(uint64(v.Ref.Entity), 64)
			w.WriteBits(uint64(v.Ref.Offset), 32)
		}
	case KindStruct:
		if len(v.Fields) != len(ft.Fields) {
			return fmt.Errorf("struct has %d fields, type wants %d", len(v.Fields), len(ft.Fields))
		}
		for i := range ft.Fields {
			if err := EncodeValue(w, &ft.Fields[i], v.Fields[i]); err != nil {
				return err
			}
		}
	case KindList:
		w.WriteUvarint(uint64(len(v.Elems)))
		for i := range v.Elems {
			if err := EncodeValue(w, ft.Elem, v.Elems[i]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown field kind %d", ft.Kind)
	}
	return nil
}

// DecodeComponent decodes a full component payload against its layout,
// returning one value per declared field.
func DecodeComponent(l *Layout, data []byte) ([]Value, error) {
	r := NewBitReader(data)
	out := make([]Value, len(l.Fields))
	for i := range l.Fields {
		v, err := DecodeValue(r, &l.Fields[i].Type)
		if err != nil {
			return nil, fmt.Errorf("component %s field %s: %w", l.Name, l.Fields[i].Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeComponent encodes one value per layout field into a fresh payload.
func EncodeComponent(l *Layout, values []Value) ([]byte, error) {
	if len(values) != len(l.Fields) {
		return nil, fmt.Errorf("component %s wants %d values, got %d", l.Name, len(l.Fields), len(values))
	}
	w := NewBitWriter()
	for i := range l.Fields {
		if err := EncodeValue(w, &l.Fields[i].Type, values[i]); err != nil {
			return nil, fmt.Errorf("component %s field %s: %w", l.Name, l.Fields[i].Name, err)
		}
	}
	return w.Bytes(), nil
}

func decodeLenBytes(r *BitReader) ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	// Compare in the unsigned domain; n*8 can overflow int64.
	if n > uint64(r.Remaining())/8 {
		return nil, fmt.Errorf("length %d exceeds remaining input", n)
	}
	return r.ReadBytes(int(n))
}
