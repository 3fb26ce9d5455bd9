package change

import (
	"fmt"
	"slices"

	"github.com/signadot/tony-txn/ir"
)

// Composite is a Log made of other logs, in the order they were added.
//
// A transaction's change log is a Composite: each recording interval of the
// transaction and the logs of committed child transactions are appended
// as they complete.
type Composite struct {
	logs     []Log
	canApply bool
}

func NewComposite() *Composite {
	return &Composite{canApply: true}
}

// Add appends l. Nil and empty logs are ignored. Once a log that cannot
// be applied has been added the composite cannot be applied either, even
// after Clear.
func (c *Composite) Add(l Log) {
	if l == nil || l.IsEmpty() {
		return
	}
	if !l.CanApply() {
		c.canApply = false
	}
	c.logs = append(c.logs, l)
}

// Apply reverts the children, last added first.
func (c *Composite) Apply() error {
	if !c.canApply {
		return ErrCannotApply
	}
	for i := len(c.logs) - 1; i >= 0; i-- {
		if err := c.logs[i].Apply(); err != nil {
			return fmt.Errorf("composite child %d: %w", i, err)
		}
	}
	return nil
}

// ApplyAndReverse reverses the children, last added first, and then the
// order of the children, so that the composite describes the inverse
// changes.
func (c *Composite) ApplyAndReverse() error {
	if !c.canApply {
		return ErrCannotApply
	}
	for i := len(c.logs) - 1; i >= 0; i-- {
		if err := c.logs[i].ApplyAndReverse(); err != nil {
			return fmt.Errorf("composite child %d: %w", i, err)
		}
	}
	slices.Reverse(c.logs)
	return nil
}

func (c *Composite) CanApply() bool {
	return c.canApply
}

func (c *Composite) IsEmpty() bool {
	for _, l := range c.logs {
		if !l.IsEmpty() {
			return false
		}
	}
	return true
}

// Clear drops all children.
func (c *Composite) Clear() {
	c.logs = nil
}

// Children returns the constituent logs in order.
func (c *Composite) Children() []Log {
	return slices.Clone(c.logs)
}

func (c *Composite) Entries() []*Entry {
	var res []*Entry
	for _, l := range c.logs {
		res = append(res, l.Entries()...)
	}
	return res
}

func (c *Composite) ObjectChanges() []ObjectChange {
	var res []ObjectChange
	for _, l := range c.logs {
		res = append(res, l.ObjectChanges()...)
	}
	return res
}

func (c *Composite) ObjectsToAttach() []*ir.Node {
	var res []*ir.Node
	for _, l := range c.logs {
		res = append(res, l.ObjectsToAttach()...)
	}
	return res
}

func (c *Composite) ObjectsToDetach() []*ir.Node {
	var res []*ir.Node
	for _, l := range c.logs {
		res = append(res, l.ObjectsToDetach()...)
	}
	return res
}

func (c *Composite) ResourceChanges() []*Entry {
	var res []*Entry
	for _, l := range c.logs {
		res = append(res, l.ResourceChanges()...)
	}
	return res
}
