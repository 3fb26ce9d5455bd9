package txn

import (
	"errors"

	"github.com/signadot/tony-txn/validate"
)

var (
	ErrNoOwner        = errors.New("context carries no transaction owner")
	ErrNotOwner       = errors.New("not transaction owner")
	ErrAlreadyActive  = errors.New("transaction is already active")
	ErrClosing        = errors.New("transaction is already closing")
	ErrClosed         = errors.New("transaction is already closed")
	ErrChildActive    = errors.New("transaction has an active child")
	ErrInterrupted    = errors.New("interrupted waiting for transaction")
	ErrReadOnlyParent = errors.New("write transaction nested in read-only transaction")
	ErrTriggerLoop    = errors.New("triggers did not settle")
	ErrNoTransaction  = errors.New("cannot modify document without a write transaction")
	ErrReadOnly       = errors.New("cannot modify document in a read-only transaction")
)

// RollbackError reports that a commit was turned into a rollback. The
// document has been restored by the time it is returned.
type RollbackError struct {
	Status validate.Status
	Err    error
}

func (e *RollbackError) Error() string {
	return "transaction rolled back: " + e.Status.String()
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

func rollbackError(err error) *RollbackError {
	var rb *RollbackError
	if errors.As(err, &rb) {
		return rb
	}
	return &RollbackError{Status: validate.Errorf(validate.Error, "%v", err), Err: err}
}
