package ir

import "fmt"

// Type is the kind of value held by a Node.
type Type int

const (
	NullType Type = iota
	NumberType
	StringType
	BoolType
	ObjectType
	ArrayType
)

var typeNames = map[Type]string{
	NullType:   "Null",
	NumberType: "Number",
	StringType: "String",
	BoolType:   "Bool",
	ObjectType: "Object",
	ArrayType:  "Array",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "<unknown type>"
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(d []byte) error {
	for tt, name := range typeNames {
		if name == string(d) {
			*t = tt
			return nil
		}
	}
	return fmt.Errorf("unrecognized type %q", d)
}

// IsContainer reports whether nodes of type t hold children.
func (t Type) IsContainer() bool {
	return t == ObjectType || t == ArrayType
}
