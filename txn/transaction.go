package txn

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/signadot/tony-txn/change"
	"github.com/signadot/tony-txn/debug"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/validate"
)

// State is the lifecycle state of a transaction.
type State int

const (
	StateInactive State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var txIDs atomic.Uint64

// Transaction is a unit of work on a domain's document.
//
// Start, Commit and Rollback must be called with a context carrying the
// transaction's owner. Abort and the accessors may be called from
// anywhere.
type Transaction struct {
	id       uint64
	domain   *Domain
	owner    *Owner
	readOnly bool

	// set at activation
	parent  *Transaction
	root    *Transaction
	lineage []uint64

	mu            sync.Mutex
	options       Options
	state         State
	rollingBack   bool
	aborted       bool
	status        validate.Status
	notifications []*model.Notification
	change        *change.Composite
}

func newTransaction(d *Domain, owner *Owner, opts Options) *Transaction {
	opts = opts.merge(d.defaults)
	tx := &Transaction{
		id:       txIDs.Add(1),
		domain:   d,
		owner:    owner,
		readOnly: opts.Bool(OptionReadOnly),
		options:  opts,
		change:   change.NewComposite(),
	}
	tx.root = tx
	tx.lineage = []uint64{tx.id}
	return tx
}

func (tx *Transaction) ID() uint64 {
	return tx.id
}

// Lineage lists transaction ids from the root down to tx.
func (tx *Transaction) Lineage() []uint64 {
	return slices.Clone(tx.lineage)
}

func (tx *Transaction) Owner() *Owner {
	return tx.owner
}

func (tx *Transaction) ReadOnly() bool {
	return tx.readOnly
}

// Options returns a copy of the effective options, including those
// inherited from the parent once tx is started.
func (tx *Transaction) Options() Options {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.options.Clone()
}

func (tx *Transaction) option(key string) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.options.Bool(key)
}

func (tx *Transaction) Parent() *Transaction {
	return tx.parent
}

func (tx *Transaction) Root() *Transaction {
	return tx.root
}

func (tx *Transaction) Depth() int {
	return len(tx.lineage)
}

func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Active reports whether tx has started and not yet closed.
func (tx *Transaction) Active() bool {
	s := tx.State()
	return s == StateActive || s == StateClosing
}

func (tx *Transaction) Status() validate.Status {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

func (tx *Transaction) setStatus(st validate.Status) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.status = st
}

// Abort marks tx and all its ancestors as aborted with status. The next
// commit of any of them rolls back.
func (tx *Transaction) Abort(status validate.Status) {
	tx.mu.Lock()
	tx.aborted = true
	tx.status = status
	tx.mu.Unlock()
	if tx.parent != nil {
		tx.parent.Abort(status)
	}
}

func (tx *Transaction) isAborted() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.aborted
}

// RollingBack reports whether tx or one of its ancestors is rolling back.
func (tx *Transaction) RollingBack() bool {
	tx.mu.Lock()
	rb := tx.rollingBack
	tx.mu.Unlock()
	return rb || (tx.parent != nil && tx.parent.RollingBack())
}

// ChangeLog returns the changes of a closed transaction, or nil if tx is
// still active or changed nothing.
func (tx *Transaction) ChangeLog() change.Log {
	if tx.Active() || tx.change.IsEmpty() {
		return nil
	}
	return tx.change
}

// Notifications returns the notifications tx has seen, including those of
// committed children.
func (tx *Transaction) Notifications() []*model.Notification {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return slices.Clone(tx.notifications)
}

func (tx *Transaction) add(n *model.Notification) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.notifications = append(tx.notifications, n)
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("tx%d", tx.id)
}

func (tx *Transaction) checkOwner(ctx context.Context) error {
	o := OwnerFrom(ctx)
	if o == nil {
		return ErrNoOwner
	}
	if o != tx.owner {
		return fmt.Errorf("%w: %s is owned by %s, not %s", ErrNotOwner, tx, tx.owner, o)
	}
	return nil
}

// Start admits tx to its domain, blocking while another owner's
// transaction is active. If the calling owner already has an active
// transaction, tx is nested in it.
func (tx *Transaction) Start(ctx context.Context) error {
	if err := tx.checkOwner(ctx); err != nil {
		return err
	}
	switch tx.State() {
	case StateActive, StateClosing:
		return fmt.Errorf("%w: %s", ErrAlreadyActive, tx)
	case StateClosed:
		return fmt.Errorf("%w: %s", ErrClosed, tx)
	}
	d := tx.domain
	_, span := d.startSpan(ctx, "txn.start", tx)
	defer span.End()
	if err := d.activate(ctx, tx); err != nil {
		endSpan(span, err)
		return err
	}
	tx.mu.Lock()
	tx.state = StateActive
	if tx.parent != nil {
		tx.options.inherit(tx.parent.Options())
	}
	tx.mu.Unlock()

	d.log.Debug("transaction started", "tx", tx.id, "depth", tx.Depth(), "owner", tx.owner.String(), "read-only", tx.readOnly)
	if debug.Tx() {
		debug.Logf("txn: start %s depth=%d owner=%s read-only=%t options=%v\n", tx, tx.Depth(), tx.owner, tx.readOnly, tx.Options())
	}
	if tx.parent != nil {
		tx.parent.pause()
	}
	tx.startRecording()
	return nil
}

// Commit closes tx, keeping its changes. On the root transaction this
// runs validation. If tx was aborted, or a trigger or validation rejects
// the changes, tx is rolled back instead and a *RollbackError is
// returned.
func (tx *Transaction) Commit(ctx context.Context) (err error) {
	if err := tx.checkOwner(ctx); err != nil {
		return err
	}
	if err := tx.checkOpen(); err != nil {
		return err
	}
	d := tx.domain
	ctx, span := d.startSpan(ctx, "txn.commit", tx)
	defer func() {
		endSpan(span, err)
		span.End()
	}()

	if tx.isAborted() {
		tx.rollback(ctx)
		return &RollbackError{Status: tx.Status()}
	}
	tx.setState(StateClosing)
	defer tx.recoverCommit(ctx)

	if triggerEnabled(tx) {
		if err := d.precommit(ctx, tx); err != nil {
			rb := rollbackError(err)
			tx.setStatus(rb.Status)
			tx.rollback(ctx)
			return rb
		}
	}
	if tx.root == tx && validationEnabled(tx) {
		st := d.Validator().Validate(ctx)
		tx.setStatus(st)
		if st.Severity >= validate.Error {
			tx.rollback(ctx)
			return &RollbackError{Status: st}
		}
	}
	tx.stopRecording()
	tx.close()
	d.log.Debug("transaction committed", "tx", tx.id, "depth", tx.Depth(), "severity", tx.Status().Severity.String())
	if debug.Tx() {
		debug.Logf("txn: commit %s status=%s\n", tx, tx.Status())
	}
	if tx.root == tx && !tx.readOnly && notificationEnabled(tx) {
		d.postcommit(ctx, tx)
	}
	return nil
}

// Rollback undoes the changes of tx and closes it. It does not fail once
// the ownership and state checks pass.
func (tx *Transaction) Rollback(ctx context.Context) (err error) {
	if err := tx.checkOwner(ctx); err != nil {
		return err
	}
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.rollback(ctx)
	return nil
}

func (tx *Transaction) checkOpen() error {
	switch tx.State() {
	case StateClosing:
		return fmt.Errorf("%w: %s", ErrClosing, tx)
	case StateActive:
		if a := tx.domain.ActiveTransaction(); a != tx {
			return fmt.Errorf("%w: %s is inside %s", ErrChildActive, a, tx)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrClosed, tx)
	}
}

// recoverCommit rolls tx back, with any children a trigger command left
// open, if a trigger or constraint panics during Commit, then panics
// again.
func (tx *Transaction) recoverCommit(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	if tx.State() != StateClosed {
		d := tx.domain
		d.log.Error("panic during commit", "tx", tx.id, "panic", r)
		for a := d.ActiveTransaction(); a != nil && a != tx && slices.Contains(a.lineage, tx.id); a = d.ActiveTransaction() {
			a.rollback(ctx)
		}
		tx.setStatus(validate.Errorf(validate.Error, "panic during commit: %v", r))
		tx.rollback(ctx)
	}
	panic(r)
}

func (tx *Transaction) setState(s State) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.state = s
}

func (tx *Transaction) rollback(ctx context.Context) {
	d := tx.domain
	_, span := d.startSpan(ctx, "txn.rollback", tx)
	defer span.End()

	tx.mu.Lock()
	tx.state = StateClosing
	tx.rollingBack = true
	tx.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic during rollback", "tx", tx.id, "panic", r)
		}
		tx.mu.Lock()
		tx.rollingBack = false
		tx.notifications = nil
		tx.mu.Unlock()
		tx.close()
	}()

	if v := d.Validator(); v != nil {
		v.Remove(tx)
	}
	tx.stopRecording()
	if err := tx.change.Apply(); err != nil {
		d.log.Error("rollback could not restore document", "tx", tx.id, "error", err)
		endSpan(span, err)
	}
	tx.change.Clear()
	d.log.Debug("transaction rolled back", "tx", tx.id, "depth", tx.Depth())
	if debug.Tx() {
		debug.Logf("txn: rollback %s\n", tx)
	}
}

func (tx *Transaction) startRecording() {
	r := tx.domain.recorder
	if undoEnabled(tx) && !r.IsRecording() {
		r.BeginRecording()
	}
}

func (tx *Transaction) stopRecording() {
	r := tx.domain.recorder
	if undoEnabled(tx) && r.IsRecording() {
		tx.change.Add(r.EndRecording())
	}
}

// pause stops recording while a child transaction runs.
func (tx *Transaction) pause() {
	if !tx.RollingBack() {
		tx.stopRecording()
	}
}

// resume takes back recording after child closes, keeping what child
// committed.
func (tx *Transaction) resume(child *Transaction) {
	if tx.RollingBack() {
		return
	}
	if undoEnabled(tx) {
		tx.change.Add(child.ChangeLog())
	}
	ns := child.Notifications()
	tx.mu.Lock()
	tx.notifications = append(tx.notifications, ns...)
	tx.mu.Unlock()
	tx.startRecording()
}

// close deactivates tx and hands control back to its parent. It does
// nothing if tx is already closed.
func (tx *Transaction) close() {
	tx.mu.Lock()
	if tx.state == StateClosed || tx.state == StateInactive {
		tx.mu.Unlock()
		return
	}
	tx.state = StateClosed
	tx.mu.Unlock()
	tx.domain.deactivate(tx)
	if tx.parent != nil {
		tx.parent.resume(tx)
	}
}
