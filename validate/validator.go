// Package validate checks the changes of a transaction before it commits.
package validate

import (
	"context"
	"slices"
	"sync"

	"github.com/signadot/tony-txn/debug"
	"github.com/signadot/tony-txn/model"
)

// Transaction is what a validator needs to know about a transaction.
type Transaction interface {
	ID() uint64
	// Lineage lists the ids from the root transaction down to this one.
	Lineage() []uint64
}

// Validator accumulates the notifications of a root transaction and its
// descendants until the root commits.
type Validator interface {
	Add(tx Transaction, n *model.Notification)
	// Remove forgets the notifications added by tx and its descendants.
	Remove(tx Transaction)
	Validate(ctx context.Context) Status
	Pending() int
}

// Factory makes validators for root transactions.
type Factory interface {
	NewReadOnlyValidator() Validator
	NewReadWriteValidator() Validator
}

// Constraint checks a single notification.
type Constraint interface {
	Check(ctx context.Context, n *model.Notification) Status
}

type Func func(ctx context.Context, n *model.Notification) Status

func (f Func) Check(ctx context.Context, n *model.Notification) Status {
	return f(ctx, n)
}

// ConstraintFactory is a Factory whose read/write validators check a fixed
// set of constraints.
type ConstraintFactory struct {
	Constraints []Constraint
}

func NewFactory(cs ...Constraint) *ConstraintFactory {
	return &ConstraintFactory{Constraints: cs}
}

func (f *ConstraintFactory) NewReadOnlyValidator() Validator {
	return ReadOnly{}
}

func (f *ConstraintFactory) NewReadWriteValidator() Validator {
	return NewReadWrite(f.Constraints...)
}

// ReadOnly is the validator of read-only transactions. Read-only
// transactions do not change the document, so it keeps nothing and always
// reports OK.
type ReadOnly struct{}

func (ReadOnly) Add(Transaction, *model.Notification) {}
func (ReadOnly) Remove(Transaction)                   {}
func (ReadOnly) Validate(context.Context) Status      { return StatusOK }
func (ReadOnly) Pending() int                         { return 0 }

type pending struct {
	lineage []uint64
	n       *model.Notification
}

// ReadWrite runs constraints over every pending notification.
type ReadWrite struct {
	constraints []Constraint

	mu      sync.Mutex
	pending []pending
}

func NewReadWrite(cs ...Constraint) *ReadWrite {
	return &ReadWrite{constraints: cs}
}

func (v *ReadWrite) Add(tx Transaction, n *model.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, pending{lineage: tx.Lineage(), n: n})
}

func (v *ReadWrite) Remove(tx Transaction) {
	id := tx.ID()
	v.mu.Lock()
	defer v.mu.Unlock()
	before := len(v.pending)
	v.pending = slices.DeleteFunc(v.pending, func(p pending) bool {
		return slices.Contains(p.lineage, id)
	})
	if debug.Validate() {
		debug.Logf("validate: remove tx %d dropped %d\n", id, before-len(v.pending))
	}
}

func (v *ReadWrite) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// Validate checks the pending notifications in the order they were added.
// It stops early if ctx is done, reporting Cancel.
func (v *ReadWrite) Validate(ctx context.Context) Status {
	v.mu.Lock()
	ps := slices.Clone(v.pending)
	v.mu.Unlock()
	ctx = withPass(ctx)
	var res []Status
	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return Merge(append(res, Errorf(Cancel, "validation interrupted: %v", err))...)
		}
		for _, c := range v.constraints {
			st := c.Check(ctx, p.n)
			if debug.Validate() {
				debug.Logf("validate: %s -> %s\n", p.n, st)
			}
			res = append(res, st)
		}
	}
	return Merge(res...)
}
