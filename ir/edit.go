package ir

import "fmt"

// The functions in this file edit containers in place. They keep the
// Parent, ParentIndex and ParentField links of every child consistent and
// return whatever they displaced; they never notify anyone.

func checkDetached(v *Node) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrType)
	}
	if v.Parent != nil {
		return fmt.Errorf("%w: %s", ErrAttached, v.Path())
	}
	return nil
}

func detach(v *Node) {
	v.Parent = nil
	v.ParentIndex = 0
	v.ParentField = ""
}

func attach(v, parent *Node, i int, field string) {
	v.Parent = parent
	v.ParentIndex = i
	v.ParentField = field
}

func reindex(y *Node, from int) {
	for i := from; i < len(y.Values); i++ {
		y.Values[i].ParentIndex = i
		if y.Type == ObjectType {
			y.Fields[i].ParentIndex = i
		}
	}
}

// SetField sets field of object obj to v. It returns the replaced value
// and its index, or nil and the index of the newly appended field.
func SetField(obj *Node, field string, v *Node) (*Node, int, error) {
	if obj.Type != ObjectType {
		return nil, -1, fmt.Errorf("%w: set field %q on %s", ErrType, field, obj.Type)
	}
	if err := checkDetached(v); err != nil {
		return nil, -1, err
	}
	i := obj.fieldIndex(field)
	if i != -1 {
		old := obj.Values[i]
		detach(old)
		attach(v, obj, i, field)
		obj.Values[i] = v
		return old, i, nil
	}
	i = len(obj.Values)
	return nil, i, InsertField(obj, i, field, v)
}

// InsertField inserts field at position i of object obj, which must not
// already have the field.
func InsertField(obj *Node, i int, field string, v *Node) error {
	if obj.Type != ObjectType {
		return fmt.Errorf("%w: insert field %q on %s", ErrType, field, obj.Type)
	}
	if obj.fieldIndex(field) != -1 {
		return fmt.Errorf("field %q already present at %s", field, obj.Path())
	}
	if i < 0 || i > len(obj.Values) {
		return fmt.Errorf("%w: %d (len %d) at %s", ErrIndex, i, len(obj.Values), obj.Path())
	}
	if err := checkDetached(v); err != nil {
		return err
	}
	key := FromString(field)
	attach(key, obj, i, field)
	attach(v, obj, i, field)
	obj.Fields = insertAt(obj.Fields, i, key)
	obj.Values = insertAt(obj.Values, i, v)
	reindex(obj, i+1)
	return nil
}

// DeleteField removes field from object obj, returning the removed value
// and the index it occupied.
func DeleteField(obj *Node, field string) (*Node, int, error) {
	if obj.Type != ObjectType {
		return nil, -1, fmt.Errorf("%w: delete field %q on %s", ErrType, field, obj.Type)
	}
	i := obj.fieldIndex(field)
	if i == -1 {
		return nil, -1, fmt.Errorf("%w: %s.%s", ErrNotFound, obj.Path(), pathString(field))
	}
	old := obj.Values[i]
	obj.Fields = removeAt(obj.Fields, i)
	obj.Values = removeAt(obj.Values, i)
	reindex(obj, i)
	detach(old)
	return old, i, nil
}

// InsertValue inserts v at index i of array arr; i may equal the length.
func InsertValue(arr *Node, i int, v *Node) error {
	if arr.Type != ArrayType {
		return fmt.Errorf("%w: insert value on %s", ErrType, arr.Type)
	}
	if i < 0 || i > len(arr.Values) {
		return fmt.Errorf("%w: %d (len %d) at %s", ErrIndex, i, len(arr.Values), arr.Path())
	}
	if err := checkDetached(v); err != nil {
		return err
	}
	attach(v, arr, i, "")
	arr.Values = insertAt(arr.Values, i, v)
	reindex(arr, i+1)
	return nil
}

// RemoveValue removes and returns the element at index i of array arr.
func RemoveValue(arr *Node, i int) (*Node, error) {
	if arr.Type != ArrayType {
		return nil, fmt.Errorf("%w: remove value on %s", ErrType, arr.Type)
	}
	if i < 0 || i >= len(arr.Values) {
		return nil, fmt.Errorf("%w: %d (len %d) at %s", ErrIndex, i, len(arr.Values), arr.Path())
	}
	old := arr.Values[i]
	arr.Values = removeAt(arr.Values, i)
	reindex(arr, i)
	detach(old)
	return old, nil
}

// ReplaceValue replaces the element at index i of array arr with v and
// returns the previous element.
func ReplaceValue(arr *Node, i int, v *Node) (*Node, error) {
	if arr.Type != ArrayType {
		return nil, fmt.Errorf("%w: replace value on %s", ErrType, arr.Type)
	}
	if i < 0 || i >= len(arr.Values) {
		return nil, fmt.Errorf("%w: %d (len %d) at %s", ErrIndex, i, len(arr.Values), arr.Path())
	}
	if err := checkDetached(v); err != nil {
		return nil, err
	}
	old := arr.Values[i]
	detach(old)
	attach(v, arr, i, "")
	arr.Values[i] = v
	return old, nil
}

func insertAt(s []*Node, i int, v *Node) []*Node {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s []*Node, i int) []*Node {
	copy(s[i:], s[i+1:])
	s[len(s)-1] = nil
	return s[:len(s)-1]
}
