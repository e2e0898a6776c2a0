package schema

// Kind enumerates the value kinds a component field can hold.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindBool
	KindString
	KindBytes
	KindRef
	KindStruct
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindRef:
		return "ref"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	}
	return "invalid"
}

// FieldType describes the wire type of a single field. Struct and list kinds
// recurse; everything else is a leaf.
type FieldType struct {
	Kind   Kind
	Elem   *FieldType  // list element type
	Fields []FieldType // struct field types, in wire order
}

// Value is a decoded field value. BitOff/BitLen record the exact bit span the
// value occupied in the buffer it was decoded from, so nested values can be
// re-decoded later without re-parsing what precedes them.
type Value struct {
	Kind Kind

	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Bytes  []byte
	Ref    Ref
	Fields []Value // struct
	Elems  []Value // list

	BitOff int64
	BitLen int64
}

func IntValue(v int64) Value      { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: KindFloat, Float: v} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func BytesValue(v []byte) Value   { return Value{Kind: KindBytes, Bytes: v} }
func RefValue(r Ref) Value        { return Value{Kind: KindRef, Ref: r} }
func StructValue(f ...Value) Value { return Value{Kind: KindStruct, Fields: f} }
func ListValue(e ...Value) Value  { return Value{Kind: KindList, Elems: e} }

// WalkRefs calls fn for every non-null ref reachable from v, including v
// itself when it is a ref.
func WalkRefs(v Value, fn func(Ref)) {
	switch v.Kind {
	case KindRef:
		if !v.Ref.IsNull() {
			fn(v.Ref)
		}
	case KindStruct:
		for _, f := range v.Fields {
			WalkRefs(f, fn)
		}
	case KindList:
		for _, e := range v.Elems {
			WalkRefs(e, fn)
		}
	}
}

// MapRefs returns a copy of v with every non-null ref rewritten through fn.
func MapRefs(v Value, fn func(Ref) Ref) Value {
	switch v.Kind {
	case KindRef:
		if !v.Ref.IsNull() {
			v.Ref = fn(v.Ref)
		}
	case KindStruct:
		fields := make([]Value, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = MapRefs(f, fn)
		}
		v.Fields = fields
	case KindList:
		elems := make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = MapRefs(e, fn)
		}
		v.Elems = elems
	}
	return v
}

// Equal compares two values structurally, ignoring bit spans.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindBool:
		return a.Bool == b.Bool
	case KindString:
		return a.Str == b.Str
	case KindBytes:
		if len(a.Bytes) != len(b.Bytes) {
			return false
		}
		for i := range a.Bytes {
			if a.Bytes[i] != b.Bytes[i] {
				return false
			}
		}
		return true
	case KindRef:
		return a.Ref == b.Ref
	case KindStruct:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Equal(a.Fields[i], b.Fields[i]) {
				return false
			}
		}
		return true
	case KindList:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}
