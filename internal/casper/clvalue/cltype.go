package clvalue

import (
	"encoding/json"
	"fmt"
)

// TypeTag is the leading byte of a serialized CLType.
type TypeTag uint8

const (
	TagBool      TypeTag = 0
	TagI32       TypeTag = 1
	TagI64       TypeTag = 2
	TagU8        TypeTag = 3
	TagU32       TypeTag = 4
	TagU64       TypeTag = 5
	TagU128      TypeTag = 6
	TagU256      TypeTag = 7
	TagU512      TypeTag = 8
	TagUnit      TypeTag = 9
	TagString    TypeTag = 10
	TagKey       TypeTag = 11
	TagURef      TypeTag = 12
	TagOption    TypeTag = 13
	TagList      TypeTag = 14
	TagByteArray TypeTag = 15
	TagAny       TypeTag = 21
	TagPublicKey TypeTag = 22
)

var simpleNames = map[TypeTag]string{
	TagBool:      "Bool",
	TagI32:       "I32",
	TagI64:       "I64",
	TagU8:        "U8",
	TagU32:       "U32",
	TagU64:       "U64",
	TagU128:      "U128",
	TagU256:      "U256",
	TagU512:      "U512",
	TagUnit:      "Unit",
	TagString:    "String",
	TagKey:       "Key",
	TagURef:      "URef",
	TagAny:       "Any",
	TagPublicKey: "PublicKey",
}

// Type is a CLType. Only the shapes this client produces are modelled: simple
// types, List and fixed-size ByteArray. Option exists for decoding node output.
type Type struct {
	Tag  TypeTag
	Elem *Type
	Size uint32
}

var (
	TypeU8   = Type{Tag: TagU8}
	TypeU64  = Type{Tag: TagU64}
	TypeU128 = Type{Tag: TagU128}
	TypeU256 = Type{Tag: TagU256}
	TypeU512 = Type{Tag: TagU512}
	TypeKey  = Type{Tag: TagKey}
)

// ListOf returns List<elem>.
func ListOf(elem Type) Type {
	return Type{Tag: TagList, Elem: &elem}
}

// ByteArrayOf returns ByteArray(n).
func ByteArrayOf(n uint32) Type {
	return Type{Tag: TagByteArray, Size: n}
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Tag != o.Tag || t.Size != o.Size {
		return false
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

// IsUnsigned reports whether values of t are unsigned integers.
func (t Type) IsUnsigned() bool {
	switch t.Tag {
	case TagU8, TagU32, TagU64, TagU128, TagU256, TagU512:
		return true
	}
	return false
}

// Bytes returns the serialized type descriptor.
func (t Type) Bytes() []byte {
	return t.appendTo(nil)
}

func (t Type) appendTo(buf []byte) []byte {
	buf = append(buf, byte(t.Tag))
	switch t.Tag {
	case TagList, TagOption:
		if t.Elem != nil {
			buf = t.Elem.appendTo(buf)
		}
	case TagByteArray:
		buf = AppendU32(buf, t.Size)
	}
	return buf
}

func (t Type) String() string {
	switch t.Tag {
	case TagList:
		return "List<" + t.elemString() + ">"
	case TagOption:
		return "Option<" + t.elemString() + ">"
	case TagByteArray:
		return fmt.Sprintf("ByteArray(%d)", t.Size)
	}
	if n, ok := simpleNames[t.Tag]; ok {
		return n
	}
	return fmt.Sprintf("CLType(%d)", t.Tag)
}

func (t Type) elemString() string {
	if t.Elem == nil {
		return "?"
	}
	return t.Elem.String()
}

// MarshalJSON renders the node's JSON form: "U256", {"List":"Key"}, {"ByteArray":32}.
func (t Type) MarshalJSON() ([]byte, error) {
	switch t.Tag {
	case TagList, TagOption:
		if t.Elem == nil {
			return nil, fmt.Errorf("%s without element type", compositeName(t.Tag))
		}
		return json.Marshal(map[string]Type{compositeName(t.Tag): *t.Elem})
	case TagByteArray:
		return json.Marshal(map[string]uint32{"ByteArray": t.Size})
	}
	n, ok := simpleNames[t.Tag]
	if !ok {
		return nil, fmt.Errorf("unknown cl_type tag %d", t.Tag)
	}
	return json.Marshal(n)
}

// UnmarshalJSON parses the forms produced by MarshalJSON.
func (t *Type) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		for tag, n := range simpleNames {
			if n == name {
				*t = Type{Tag: tag}
				return nil
			}
		}
		return fmt.Errorf("unsupported cl_type %q", name)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("invalid cl_type: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("invalid cl_type: expected one key, got %d", len(obj))
	}
	for k, v := range obj {
		switch k {
		case "List", "Option":
			var elem Type
			if err := json.Unmarshal(v, &elem); err != nil {
				return err
			}
			tag := TagList
			if k == "Option" {
				tag = TagOption
			}
			*t = Type{Tag: tag, Elem: &elem}
		case "ByteArray":
			var n uint32
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("invalid ByteArray size: %w", err)
			}
			*t = ByteArrayOf(n)
		default:
			return fmt.Errorf("unsupported cl_type %q", k)
		}
	}
	return nil
}

func compositeName(tag TypeTag) string {
	if tag == TagOption {
		return "Option"
	}
	return "List"
}
