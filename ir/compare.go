package ir

import (
	"cmp"
	"strings"
)

// Compare returns an integer comparing two nodes structurally.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
// Tags and positions are ignored.
func Compare(a, b *Node) int {
	if a == b {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if a.Type != b.Type {
		return cmp.Compare(rank(a.Type), rank(b.Type))
	}
	switch a.Type {
	case NumberType:
		return compareNumbers(a, b)
	case StringType:
		return strings.Compare(a.String, b.String)
	case BoolType:
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		default:
			return 1
		}
	case ArrayType:
		return compareSeq(a.Values, b.Values)
	case ObjectType:
		if c := compareSeq(a.Fields, b.Fields); c != 0 {
			return c
		}
		return compareSeq(a.Values, b.Values)
	}
	return 0
}

// Equal reports whether a and b hold the same value.
func Equal(a, b *Node) bool {
	return Compare(a, b) == 0
}

// rank orders types: Null < Bool < Number < String < Array < Object
func rank(t Type) int {
	switch t {
	case NullType:
		return 0
	case BoolType:
		return 1
	case NumberType:
		return 2
	case StringType:
		return 3
	case ArrayType:
		return 4
	case ObjectType:
		return 5
	}
	return 100
}

func compareNumbers(a, b *Node) int {
	switch {
	case a.Int64 != nil && b.Int64 != nil:
		return cmp.Compare(*a.Int64, *b.Int64)
	case a.Float64 != nil && b.Float64 != nil:
		return cmp.Compare(*a.Float64, *b.Float64)
	case a.Int64 != nil && b.Float64 != nil:
		return cmp.Compare(float64(*a.Int64), *b.Float64)
	case a.Float64 != nil && b.Int64 != nil:
		return cmp.Compare(*a.Float64, float64(*b.Int64))
	}
	return strings.Compare(a.Number, b.Number)
}

func compareSeq(as, bs []*Node) int {
	n := min(len(as), len(bs))
	for i := range n {
		if c := Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}
