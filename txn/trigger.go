package txn

import (
	"context"
	"fmt"

	"github.com/signadot/tony-txn/change"
	"github.com/signadot/tony-txn/debug"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/validate"
)

// Event describes the changes of a transaction to triggers and listeners.
type Event struct {
	Domain        *Domain
	Transaction   *Transaction
	Notifications []*model.Notification
	// ChangeLog is set for post-commit events.
	ChangeLog change.Log
}

// Command is work a trigger asks to have done before a commit completes.
type Command interface {
	Execute(ctx context.Context) error
}

type CommandFunc func(ctx context.Context) error

func (f CommandFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Trigger reacts to the changes of a committing transaction. It may
// return a command making further changes, which then also go through the
// triggers. An error rolls the transaction back.
type Trigger interface {
	AboutToCommit(ctx context.Context, ev *Event) (Command, error)
}

type TriggerFunc func(ctx context.Context, ev *Event) (Command, error)

func (f TriggerFunc) AboutToCommit(ctx context.Context, ev *Event) (Command, error) {
	return f(ctx, ev)
}

// Listener is told about root write transactions after they commit.
type Listener interface {
	Committed(ctx context.Context, ev *Event)
}

type ListenerFunc func(ctx context.Context, ev *Event)

func (f ListenerFunc) Committed(ctx context.Context, ev *Event) {
	f(ctx, ev)
}

func (d *Domain) AddTrigger(t Trigger) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.triggers = append(d.triggers, t)
}

func (d *Domain) AddListener(l Listener) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Domain) hooks() ([]Trigger, []Listener) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	return append([]Trigger(nil), d.triggers...), append([]Listener(nil), d.listeners...)
}

// precommit runs the triggers over the notifications of tx they have not
// seen yet, executing returned commands in a nested transaction, until
// they stop asking for changes.
func (d *Domain) precommit(ctx context.Context, tx *Transaction) error {
	triggers, _ := d.hooks()
	if len(triggers) == 0 {
		return nil
	}
	seen := 0
	for round := 0; ; round++ {
		all := tx.Notifications()
		fresh := all[seen:]
		seen = len(all)
		if len(fresh) == 0 {
			return nil
		}
		if round >= d.maxRounds {
			return &RollbackError{
				Status: validate.Errorf(validate.Error, "triggers still changing the document after %d rounds", round),
				Err:    ErrTriggerLoop,
			}
		}
		ev := &Event{Domain: d, Transaction: tx, Notifications: fresh}
		var cmds []Command
		for _, t := range triggers {
			cmd, err := t.AboutToCommit(ctx, ev)
			if err != nil {
				return fmt.Errorf("trigger: %w", err)
			}
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		if len(cmds) == 0 {
			return nil
		}
		if debug.Tx() {
			debug.Logf("txn: %s round %d runs %d trigger commands\n", tx, round, len(cmds))
		}
		if err := d.runCommands(ctx, cmds); err != nil {
			return err
		}
	}
}

// runCommands executes cmds in a child transaction of the active one. The
// child does not run triggers itself; its changes reach the next round
// through its parent.
func (d *Domain) runCommands(ctx context.Context, cmds []Command) error {
	child, err := d.Begin(ctx, Options{OptionNoTriggers: true})
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := cmd.Execute(ctx); err != nil {
			if rbErr := child.Rollback(ctx); rbErr != nil {
				d.log.Error("trigger command rollback", "tx", child.id, "error", rbErr)
			}
			return fmt.Errorf("trigger command: %w", err)
		}
	}
	return child.Commit(ctx)
}

// postcommit tells listeners about a committed root transaction.
func (d *Domain) postcommit(ctx context.Context, tx *Transaction) {
	_, listeners := d.hooks()
	ns := tx.Notifications()
	if len(listeners) == 0 || len(ns) == 0 {
		return
	}
	ev := &Event{Domain: d, Transaction: tx, Notifications: ns, ChangeLog: tx.ChangeLog()}
	for _, l := range listeners {
		l.Committed(ctx, ev)
	}
}
