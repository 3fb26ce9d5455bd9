package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/validate"
)

// auditTrigger appends the path of every change to $.count to $.audit.
func auditTrigger(d *Domain) Trigger {
	return TriggerFunc(func(_ context.Context, ev *Event) (Command, error) {
		var paths []string
		for _, n := range ev.Notifications {
			if n.Path == "$.count" {
				paths = append(paths, fmt.Sprintf("%s %s", n.Kind, n.Path))
			}
		}
		if len(paths) == 0 {
			return nil, nil
		}
		return CommandFunc(func(ctx context.Context) error {
			m := d.Model()
			if _, err := m.Get("$.audit"); err != nil {
				if err := m.Set(ctx, "$.audit", ir.FromSlice(nil)); err != nil {
					return err
				}
			}
			for _, p := range paths {
				if err := m.Append(ctx, "$.audit", ir.FromString(p)); err != nil {
					return err
				}
			}
			return nil
		}), nil
	})
}

func TestTriggerCommandsCommitWithTransaction(t *testing.T) {
	d, ctx := newDomain(t)
	d.AddTrigger(auditTrigger(d))
	m := d.Model()
	before := state(d)

	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(2)))
	must(t, m.Set(ctx, "$.count", ir.FromInt(3)))
	must(t, tx.Commit(ctx))

	audit, err := m.Get("$.audit")
	must(t, err)
	if diff := cmp.Diff([]any{"set $.count", "set $.count"}, ir.ToAny(audit)); diff != "" {
		t.Errorf("audit (-want +got):\n%s", diff)
	}
	// 2 edits, creating the audit list and 2 appends
	if got := len(tx.Notifications()); got != 5 {
		t.Errorf("got %d notifications", got)
	}
	// the trigger's changes are part of the transaction's log
	must(t, tx.ChangeLog().Apply())
	if diff := cmp.Diff(before, state(d)); diff != "" {
		t.Errorf("undo (-want +got):\n%s", diff)
	}
}

func TestNoTriggers(t *testing.T) {
	d, ctx := newDomain(t)
	d.AddTrigger(auditTrigger(d))
	m := d.Model()
	for _, opts := range []Options{{OptionNoTriggers: true}, {OptionUnprotected: true}} {
		tx := begin(t, d, ctx, opts)
		must(t, m.Set(ctx, "$.count", ir.FromInt(9)))
		must(t, tx.Commit(ctx))
		if _, err := m.Get("$.audit"); !errors.Is(err, ir.ErrNotFound) {
			t.Errorf("%v: trigger ran", opts)
		}
	}
}

func TestTriggerVeto(t *testing.T) {
	d, ctx := newDomain(t)
	m := d.Model()
	errVeto := errors.New("count is frozen")
	d.AddTrigger(TriggerFunc(func(_ context.Context, ev *Event) (Command, error) {
		for _, n := range ev.Notifications {
			if n.Path == "$.count" {
				return nil, errVeto
			}
		}
		return nil, nil
	}))
	before := state(d)
	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(2)))
	err := tx.Commit(ctx)
	var rb *RollbackError
	if !errors.As(err, &rb) || !errors.Is(err, errVeto) {
		t.Fatalf("got %v", err)
	}
	if rb.Status.Severity != validate.Error {
		t.Errorf("status %v", rb.Status)
	}
	if diff := cmp.Diff(before, state(d)); diff != "" {
		t.Errorf("veto did not restore (-want +got):\n%s", diff)
	}
}

func TestTriggerCommandFailure(t *testing.T) {
	d, ctx := newDomain(t)
	m := d.Model()
	d.AddTrigger(TriggerFunc(func(context.Context, *Event) (Command, error) {
		return CommandFunc(func(ctx context.Context) error {
			if err := m.Set(ctx, "$.touched", ir.FromBool(true)); err != nil {
				return err
			}
			return m.Delete(ctx, "$.missing")
		}), nil
	}))
	before := state(d)
	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(2)))
	var rb *RollbackError
	if err := tx.Commit(ctx); !errors.As(err, &rb) || !errors.Is(err, ir.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if diff := cmp.Diff(before, state(d)); diff != "" {
		t.Errorf("document (-want +got):\n%s", diff)
	}
}

func TestTriggerLoop(t *testing.T) {
	d, ctx := newDomain(t, WithMaxTriggerRounds(3))
	m := d.Model()
	rounds := 0
	d.AddTrigger(TriggerFunc(func(context.Context, *Event) (Command, error) {
		rounds++
		return CommandFunc(func(ctx context.Context) error {
			return m.Set(ctx, "$.count", ir.FromInt(int64(rounds)))
		}), nil
	}))
	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(0)))
	err := tx.Commit(ctx)
	if !errors.Is(err, ErrTriggerLoop) {
		t.Fatalf("got %v", err)
	}
	if rounds != 3 {
		t.Errorf("triggers ran %d rounds", rounds)
	}
	if n, _ := m.Get("$.count"); *n.Int64 != 1 {
		t.Errorf("count %d after rollback", *n.Int64)
	}
}

func TestTriggerChangesAreValidated(t *testing.T) {
	d, ctx := newDomain(t, WithValidatorFactory(validate.NewFactory(rejectBad(nil))))
	m := d.Model()
	d.AddTrigger(TriggerFunc(func(_ context.Context, ev *Event) (Command, error) {
		for _, n := range ev.Notifications {
			if n.Path == "$.name" {
				return CommandFunc(func(ctx context.Context) error {
					return m.Set(ctx, "$.status", ir.FromString("bad"))
				}), nil
			}
		}
		return nil, nil
	}))
	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.name", ir.FromString("renamed")))
	var rb *RollbackError
	if err := tx.Commit(ctx); !errors.As(err, &rb) {
		t.Fatalf("got %v", err)
	}
	if _, err := m.Get("$.status"); !errors.Is(err, ir.ErrNotFound) {
		t.Error("trigger change survived rollback")
	}
}

func TestPostCommitListeners(t *testing.T) {
	d, ctx := newDomain(t)
	m := d.Model()
	var events []*Event
	d.AddListener(ListenerFunc(func(_ context.Context, ev *Event) {
		events = append(events, ev)
	}))

	tx := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(2)))
	child := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.name", ir.FromString("n")))
	must(t, child.Commit(ctx))
	if len(events) != 0 {
		t.Fatal("nested commit notified listeners")
	}
	must(t, tx.Commit(ctx))
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	ev := events[0]
	var paths []string
	for _, n := range ev.Notifications {
		paths = append(paths, n.Path)
	}
	if diff := cmp.Diff([]string{"$.count", "$.name"}, paths); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
	if ev.Transaction != tx || ev.ChangeLog == nil {
		t.Errorf("event %+v", ev)
	}

	quiet := begin(t, d, ctx, Options{OptionNoNotifications: true})
	must(t, m.Set(ctx, "$.count", ir.FromInt(3)))
	must(t, quiet.Commit(ctx))

	failed := begin(t, d, ctx, nil)
	must(t, m.Set(ctx, "$.count", ir.FromInt(4)))
	must(t, failed.Rollback(ctx))

	ro := begin(t, d, ctx, Options{OptionReadOnly: true})
	must(t, ro.Commit(ctx))
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestListenerMayReadAfterCommit(t *testing.T) {
	d, ctx := newDomain(t)
	m := d.Model()
	var got []*model.Notification
	var count int64
	d.AddListener(ListenerFunc(func(ctx context.Context, ev *Event) {
		got = ev.Notifications
		_ = d.RunExclusive(ctx, func(context.Context) error {
			n, err := m.Get("$.count")
			if err == nil {
				count = *n.Int64
			}
			return err
		})
	}))
	must(t, d.Execute(ctx, nil, func(ctx context.Context) error {
		return m.Set(ctx, "$.count", ir.FromInt(11))
	}))
	if len(got) != 1 || count != 11 {
		t.Errorf("listener saw %d notifications, count %d", len(got), count)
	}
}

func TestPanicDuringCommitReleasesLock(t *testing.T) {
	boom := func() { panic("boom") }
	for _, c := range []struct {
		name  string
		setup func(d *Domain)
		opts  []DomainOption
	}{
		{name: "trigger", setup: func(d *Domain) {
			d.AddTrigger(TriggerFunc(func(context.Context, *Event) (Command, error) {
				boom()
				return nil, nil
			}))
		}},
		{name: "command", setup: func(d *Domain) {
			d.AddTrigger(TriggerFunc(func(_ context.Context, ev *Event) (Command, error) {
				return CommandFunc(func(ctx context.Context) error {
					if err := d.Model().Set(ctx, "$.touched", ir.FromBool(true)); err != nil {
						return err
					}
					boom()
					return nil
				}), nil
			}))
		}},
		{name: "constraint", opts: []DomainOption{WithValidatorFactory(validate.NewFactory(
			validate.Func(func(context.Context, *model.Notification) validate.Status {
				boom()
				return validate.StatusOK
			})))}},
	} {
		t.Run(c.name, func(t *testing.T) {
			d, ctx := newDomain(t, c.opts...)
			if c.setup != nil {
				c.setup(d)
			}
			before := state(d)
			tx := begin(t, d, ctx, nil)
			must(t, d.Model().Set(ctx, "$.count", ir.FromInt(2)))
			func() {
				defer func() {
					if r := recover(); r != "boom" {
						t.Errorf("recovered %v", r)
					}
				}()
				_ = tx.Commit(ctx)
			}()
			if tx.State() != StateClosed || d.ActiveTransaction() != nil {
				t.Fatalf("state %s, active %v", tx.State(), d.ActiveTransaction())
			}
			if tx.Status().Severity != validate.Error {
				t.Errorf("status %v", tx.Status())
			}
			if diff := cmp.Diff(before, state(d)); diff != "" {
				t.Errorf("document (-want +got):\n%s", diff)
			}
			other := WithOwner(context.Background(), NewOwner("other"))
			wctx, cancel := context.WithTimeout(other, 5*time.Second)
			defer cancel()
			next, err := d.Begin(wctx, nil)
			must(t, err)
			must(t, next.Commit(wctx))
		})
	}
}
