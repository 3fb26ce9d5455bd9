package change

import (
	"errors"
	"fmt"
	"slices"

	"github.com/signadot/tony-txn/ir"
)

var ErrCannotApply = errors.New("change log cannot be applied")

// Log is a reversible record of changes made to a document.
//
// Applying a log reverts the document to the state before the changes.
// ApplyAndReverse does the same and turns the log into the description of
// the changes just reverted, so applying it again restores the later state.
type Log interface {
	Apply() error
	ApplyAndReverse() error
	CanApply() bool
	IsEmpty() bool
	ObjectChanges() []ObjectChange
	ObjectsToAttach() []*ir.Node
	ObjectsToDetach() []*ir.Node
	ResourceChanges() []*Entry
	Entries() []*Entry
}

// ObjectChange groups the entries affecting one container.
type ObjectChange struct {
	Target  *ir.Node
	Entries []*Entry
}

// Description is the log of one uninterrupted recording.
type Description struct {
	entries []*Entry
}

func NewDescription(entries ...*Entry) *Description {
	return &Description{entries: entries}
}

func (d *Description) add(e *Entry) {
	d.entries = append(d.entries, e)
}

// Apply undoes the entries in reverse order of recording.
func (d *Description) Apply() error {
	for i := len(d.entries) - 1; i >= 0; i-- {
		if err := d.entries[i].Undo(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Description) ApplyAndReverse() error {
	inv := make([]*Entry, 0, len(d.entries))
	for i := len(d.entries) - 1; i >= 0; i-- {
		e := d.entries[i]
		if err := e.Undo(); err != nil {
			return err
		}
		inv = append(inv, e.Inverse())
	}
	d.entries = inv
	return nil
}

func (d *Description) CanApply() bool {
	return true
}

func (d *Description) IsEmpty() bool {
	return len(d.entries) == 0
}

func (d *Description) Entries() []*Entry {
	return slices.Clone(d.entries)
}

func (d *Description) ObjectChanges() []ObjectChange {
	return objectChanges(d.entries)
}

func (d *Description) ObjectsToAttach() []*ir.Node {
	return toAttach(d.entries)
}

func (d *Description) ObjectsToDetach() []*ir.Node {
	return toDetach(d.entries)
}

func (d *Description) ResourceChanges() []*Entry {
	return resourceChanges(d.entries)
}

func (d *Description) String() string {
	return fmt.Sprintf("description(%d entries)", len(d.entries))
}

func objectChanges(es []*Entry) []ObjectChange {
	var res []ObjectChange
	pos := map[*ir.Node]int{}
	for _, e := range es {
		i, ok := pos[e.Target]
		if !ok {
			i = len(res)
			pos[e.Target] = i
			res = append(res, ObjectChange{Target: e.Target})
		}
		res[i].Entries = append(res[i].Entries, e)
	}
	return res
}

// toAttach lists the values that applying es puts back into the document.
func toAttach(es []*Entry) []*ir.Node {
	var res []*ir.Node
	for _, e := range es {
		if e.Old != nil {
			res = append(res, e.Old)
		}
	}
	return res
}

// toDetach lists the values that applying es takes out of the document.
func toDetach(es []*Entry) []*ir.Node {
	var res []*ir.Node
	for _, e := range es {
		if e.New != nil {
			res = append(res, e.New)
		}
	}
	return res
}

// resourceChanges lists the entries that change the document root itself.
func resourceChanges(es []*Entry) []*Entry {
	var res []*Entry
	for _, e := range es {
		if e.Target.Parent == nil {
			res = append(res, e)
		}
	}
	return res
}
