package txn

import (
	"context"
	"errors"
)

// RunExclusive runs fn in a read-only transaction, giving it a consistent
// view of the document. ctx gets an owner if it has none.
func (d *Domain) RunExclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = ensureOwner(ctx, "exclusive")
	tx, err := d.Begin(ctx, Options{OptionReadOnly: true})
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errors.Join(err, tx.Rollback(ctx))
	}
	return tx.Commit(ctx)
}

// Execute runs fn in a write transaction with opts. The transaction is
// rolled back if fn fails and committed otherwise; the commit error, such
// as a *RollbackError, is returned. ctx gets an owner if it has none.
func (d *Domain) Execute(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	ctx = ensureOwner(ctx, "execute")
	tx, err := d.Begin(ctx, opts.With(OptionReadOnly, false))
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errors.Join(err, tx.Rollback(ctx))
	}
	return tx.Commit(ctx)
}
