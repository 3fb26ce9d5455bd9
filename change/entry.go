package change

import (
	"fmt"

	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
)

// Entry is one applied mutation that can be undone.
//
// The fields mirror model.Notification. Pointer is the JSON pointer of the
// affected slot at the time the entry was recorded.
type Entry struct {
	Kind    model.Kind
	Target  *ir.Node
	Field   string
	Index   int
	Old     *ir.Node
	New     *ir.Node
	Path    string
	Pointer string
}

// FromNotification records n as an entry. It must be called before the
// document changes again.
func FromNotification(n *model.Notification) *Entry {
	e := &Entry{
		Kind:   n.Kind,
		Target: n.Target,
		Field:  n.Field,
		Index:  n.Index,
		Old:    n.Old,
		New:    n.New,
		Path:   n.Path,
	}
	e.Pointer = slotPointer(n.Target, n.Field, n.Index)
	return e
}

func slotPointer(target *ir.Node, field string, index int) string {
	if target.Type == ir.ObjectType {
		return target.Pointer() + "/" + ir.PointerEscape(field)
	}
	return fmt.Sprintf("%s/%d", target.Pointer(), index)
}

// Undo reverts the mutation e describes, using the raw ir edits so that no
// notifications are produced.
func (e *Entry) Undo() error {
	var err error
	switch e.Kind {
	case model.Set:
		if e.Old == nil {
			_, _, err = ir.DeleteField(e.Target, e.Field)
		} else {
			_, _, err = ir.SetField(e.Target, e.Field, e.Old)
		}
	case model.Unset:
		err = ir.InsertField(e.Target, e.Index, e.Field, e.Old)
	case model.Add:
		_, err = ir.RemoveValue(e.Target, e.Index)
	case model.Remove:
		err = ir.InsertValue(e.Target, e.Index, e.Old)
	case model.Replace:
		_, err = ir.ReplaceValue(e.Target, e.Index, e.Old)
	default:
		err = fmt.Errorf("unknown entry kind %s", e.Kind)
	}
	if err != nil {
		return fmt.Errorf("undo %s: %w", e, err)
	}
	return nil
}

// Inverse returns the entry recorded by undoing e. Undoing the inverse
// redoes e.
func (e *Entry) Inverse() *Entry {
	res := *e
	switch e.Kind {
	case model.Set:
		if e.Old == nil {
			res.Kind = model.Unset
			res.Old, res.New = e.New, nil
		} else {
			res.Old, res.New = e.New, e.Old
		}
	case model.Unset:
		res.Kind = model.Set
		res.Old, res.New = nil, e.Old
	case model.Add:
		res.Kind = model.Remove
		res.Old, res.New = e.New, nil
	case model.Remove:
		res.Kind = model.Add
		res.Old, res.New = nil, e.Old
	case model.Replace:
		res.Old, res.New = e.New, e.Old
	}
	return &res
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
