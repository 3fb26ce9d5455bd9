package txn

import (
	"context"
	"fmt"
	"slices"

	"github.com/signadot/tony-txn/debug"
)

type waiter struct {
	tx    *Transaction
	ready chan struct{}
}

// activate makes tx the active transaction. A transaction of the owner of
// the active transaction is nested at once. Otherwise tx waits its turn
// for the lock, which is held until the outermost transaction closes.
func (d *Domain) activate(ctx context.Context, tx *Transaction) error {
	d.mu.Lock()
	if cur := d.active; cur != nil && cur.owner == tx.owner {
		if cur.readOnly && !tx.readOnly {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s in %s", ErrReadOnlyParent, tx, cur)
		}
		tx.parent = cur
		tx.root = cur.root
		tx.lineage = append(cur.Lineage(), tx.id)
		d.active = tx
		d.mu.Unlock()
		if debug.Lock() {
			debug.Logf("lock: %s nested in %s\n", tx, tx.parent)
		}
		return nil
	}
	if d.lockOwner == nil && len(d.waiters) == 0 {
		d.grantLocked(tx)
		d.mu.Unlock()
		if debug.Lock() {
			debug.Logf("lock: %s acquired by %s\n", tx, tx.owner)
		}
		return nil
	}
	w := &waiter{tx: tx, ready: make(chan struct{})}
	d.waiters = append(d.waiters, w)
	holder := d.lockOwner
	d.mu.Unlock()
	d.log.Debug("waiting for transaction lock", "tx", tx.id, "owner", tx.owner.String(), "holder", holder.String())
	if debug.Lock() {
		debug.Logf("lock: %s waiting behind %s\n", tx, holder)
	}

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-w.ready:
		// granted while we were giving up, pass it on
		d.releaseLocked()
	default:
		d.waiters = slices.DeleteFunc(d.waiters, func(x *waiter) bool { return x == w })
	}
	if debug.Lock() {
		debug.Logf("lock: %s interrupted\n", tx)
	}
	return fmt.Errorf("%w: %s: %w", ErrInterrupted, tx, ctx.Err())
}

// deactivate removes tx from the active slot. When tx is outermost the
// lock goes to the first waiter.
func (d *Domain) deactivate(tx *Transaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != tx {
		d.log.Error("deactivating inactive transaction", "tx", tx.id, "active", fmt.Sprint(d.active))
		return
	}
	if tx.parent != nil {
		d.active = tx.parent
		return
	}
	d.releaseLocked()
	if debug.Lock() {
		debug.Logf("lock: %s released by %s\n", tx, tx.owner)
	}
}

func (d *Domain) grantLocked(tx *Transaction) {
	d.active = tx
	d.lockOwner = tx.owner
	if tx.readOnly {
		d.validator = d.factory.NewReadOnlyValidator()
	} else {
		d.validator = d.factory.NewReadWriteValidator()
	}
}

func (d *Domain) releaseLocked() {
	d.active = nil
	d.lockOwner = nil
	d.validator = nil
	if len(d.waiters) == 0 {
		return
	}
	w := d.waiters[0]
	d.waiters = d.waiters[1:]
	d.grantLocked(w.tx)
	close(w.ready)
}

// Waiting returns the number of transactions waiting for the lock.
func (d *Domain) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}
