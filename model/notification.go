package model

import (
	"fmt"
	"strconv"

	"github.com/signadot/tony-txn/ir"
)

// Kind is the kind of mutation a Notification reports.
type Kind int

const (
	// Set adds or replaces an object field.
	Set Kind = iota
	// Unset deletes an object field.
	Unset
	// Add inserts an array element.
	Add
	// Remove deletes an array element.
	Remove
	// Replace replaces an array element.
	Replace
)

var kindNames = map[Kind]string{
	Set:     "set",
	Unset:   "unset",
	Add:     "add",
	Remove:  "remove",
	Replace: "replace",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(d []byte) error {
	for kk, name := range kindNames {
		if name == string(d) {
			*k = kk
			return nil
		}
	}
	return fmt.Errorf("unrecognized kind %q", d)
}

// Notification describes one mutation of a model, after the fact.
//
// Target is the container that changed. Field is set for object kinds and
// Index is the position of the affected slot. Old is the displaced value
// (nil for Add and for a Set that created the field) and New the inserted
// value (nil for Unset and Remove). Path is the slot's path at the time of
// the mutation.
type Notification struct {
	Kind   Kind
	Target *ir.Node
	Field  string
	Index  int
	Old    *ir.Node
	New    *ir.Node
	Path   string
}

// Value returns the value the notification is about: New if set,
// otherwise Old.
func (n *Notification) Value() *ir.Node {
	if n.New != nil {
		return n.New
	}
	return n.Old
}

func (n *Notification) String() string {
	switch n.Kind {
	case Unset, Remove:
		return fmt.Sprintf("%s %s", n.Kind, n.Path)
	default:
		return fmt.Sprintf("%s %s = %s", n.Kind, n.Path, ir.MustYAML(n.New))
	}
}

func slotPath(target *ir.Node, field string, index int) string {
	if target.Type == ir.ObjectType {
		return target.Path() + "." + ir.QuoteField(field)
	}
	return target.Path() + "[" + strconv.Itoa(index) + "]"
}
