package ir

import (
	"maps"
	"slices"
	"strconv"
)

// Node is one value in a document tree.
//
// For ObjectType nodes Fields[i] is the (string) key of Values[i]. Every
// child records its position in its parent through Parent, ParentIndex
// and ParentField.
type Node struct {
	Type        Type
	Parent      *Node
	ParentIndex int
	ParentField string
	Fields      []*Node
	Values      []*Node

	Tag string

	String  string
	Bool    bool
	Number  string
	Float64 *float64
	Int64   *int64
}

func (y *Node) WithTag(tag string) *Node {
	y.Tag = tag
	return y
}

// Clone returns a deep copy of y detached from any parent.
func (y *Node) Clone() *Node {
	res := y.cloneTo(&Node{})
	res.Parent = nil
	res.ParentIndex = 0
	res.ParentField = ""
	return res
}

func (y *Node) cloneTo(dst *Node) *Node {
	dst.Parent = y.Parent
	dst.ParentIndex = y.ParentIndex
	dst.ParentField = y.ParentField
	dst.Type = y.Type
	dst.Tag = y.Tag
	dst.String = y.String
	dst.Bool = y.Bool
	dst.Number = y.Number
	if y.Float64 != nil {
		f := *y.Float64
		dst.Float64 = &f
	}
	if y.Int64 != nil {
		i := *y.Int64
		dst.Int64 = &i
	}
	if y.Fields != nil {
		dst.Fields = make([]*Node, len(y.Fields))
		for i, yf := range y.Fields {
			dst.Fields[i] = yf.cloneTo(&Node{})
			dst.Fields[i].Parent = dst
		}
	}
	if y.Values != nil {
		dst.Values = make([]*Node, len(y.Values))
		for i, yv := range y.Values {
			dst.Values[i] = yv.cloneTo(&Node{})
			dst.Values[i].Parent = dst
		}
	}
	return dst
}

func FromString(v string) *Node {
	return &Node{Type: StringType, String: v}
}

func FromInt(v int64) *Node {
	return &Node{
		Type:   NumberType,
		Int64:  &v,
		Number: strconv.FormatInt(v, 10),
	}
}

func FromFloat(f float64) *Node {
	return &Node{
		Type:    NumberType,
		Float64: &f,
		Number:  strconv.FormatFloat(f, 'g', -1, 64),
	}
}

func FromBool(v bool) *Node {
	return &Node{Type: BoolType, Bool: v}
}

func Null() *Node {
	return &Node{Type: NullType}
}

// FromMap builds an object with its keys in sorted order.
func FromMap(yMap map[string]*Node) *Node {
	keys := slices.Sorted(maps.Keys(yMap))
	kvs := make([]KeyVal, len(keys))
	for i, k := range keys {
		kvs[i] = KeyVal{Key: k, Val: yMap[k]}
	}
	return FromKeyVals(kvs)
}

type KeyVal struct {
	Key string
	Val *Node
}

// FromKeyVals builds an object preserving the order of kvs.
func FromKeyVals(kvs []KeyVal) *Node {
	res := &Node{
		Type:   ObjectType,
		Fields: make([]*Node, len(kvs)),
		Values: make([]*Node, len(kvs)),
	}
	for i, kv := range kvs {
		res.Fields[i] = &Node{
			Type:        StringType,
			String:      kv.Key,
			Parent:      res,
			ParentIndex: i,
			ParentField: kv.Key,
		}
		kv.Val.Parent = res
		kv.Val.ParentIndex = i
		kv.Val.ParentField = kv.Key
		res.Values[i] = kv.Val
	}
	return res
}

func FromSlice(ySlice []*Node) *Node {
	res := &Node{
		Type:   ArrayType,
		Values: make([]*Node, len(ySlice)),
	}
	for i, y := range ySlice {
		y.Parent = res
		y.ParentIndex = i
		y.ParentField = ""
		res.Values[i] = y
	}
	return res
}

// Get returns the value of field in object y, or nil.
func Get(y *Node, field string) *Node {
	if i := y.fieldIndex(field); i != -1 {
		return y.Values[i]
	}
	return nil
}

func (y *Node) fieldIndex(field string) int {
	if y.Type != ObjectType {
		return -1
	}
	for i := range y.Fields {
		if y.Fields[i].String == field {
			return i
		}
	}
	return -1
}

// Visit walks y depth first, calling f before (isPost=false) and after
// (isPost=true) the children. Children are skipped when the pre-order call
// returns false.
func (y *Node) Visit(f func(y *Node, isPost bool) (bool, error)) error {
	dive, err := f(y, false)
	if err != nil {
		return err
	}
	if dive {
		for _, yy := range y.Values {
			if err := yy.Visit(f); err != nil {
				return err
			}
		}
	}
	_, err = f(y, true)
	return err
}

func (y *Node) Root() *Node {
	res := y
	for res.Parent != nil {
		res = res.Parent
	}
	return res
}

// Contains reports whether n is y or a descendant of y.
func (y *Node) Contains(n *Node) bool {
	for ; n != nil; n = n.Parent {
		if n == y {
			return true
		}
	}
	return false
}

// Truth reports whether a node is "truthy": non-empty containers and
// strings, non-zero numbers and true.
func Truth(node *Node) bool {
	switch node.Type {
	case ObjectType:
		return len(node.Fields) != 0
	case ArrayType:
		return len(node.Values) != 0
	case StringType:
		return node.String != ""
	case NumberType:
		if node.Int64 != nil {
			return *node.Int64 != 0
		}
		if node.Float64 != nil {
			return *node.Float64 != 0.0
		}
		return node.Number != ""
	case BoolType:
		return node.Bool
	default:
		return false
	}
}
