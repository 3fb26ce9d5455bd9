// Package txn runs transactions over a model.
//
// A Domain admits one transaction at a time. Transactions of the owner of
// the active transaction nest inside it; other owners wait, in arrival
// order, until the outermost transaction closes. Nested transactions can
// be rolled back on their own, and only the outermost one validates.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signadot/tony-txn/change"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/validate"
)

const (
	tracerName       = "github.com/signadot/tony-txn/txn"
	defaultMaxRounds = 10
)

// Domain arbitrates transactions over one model.
type Domain struct {
	model     *model.Model
	log       *slog.Logger
	factory   validate.Factory
	defaults  Options
	tracer    trace.Tracer
	maxRounds int
	recorder  *change.Recorder
	router    *router

	// mu guards the active slot, the lock and the waiters. It is only held
	// for short critical sections, never while waiting for admission.
	mu        sync.Mutex
	active    *Transaction
	lockOwner *Owner
	waiters   []*waiter
	validator validate.Validator

	hookMu    sync.Mutex
	triggers  []Trigger
	listeners []Listener
}

type DomainOption func(*Domain)

func WithLogger(log *slog.Logger) DomainOption {
	return func(d *Domain) { d.log = log }
}

func WithValidatorFactory(f validate.Factory) DomainOption {
	return func(d *Domain) { d.factory = f }
}

// WithDefaultOptions sets options applied under the explicit options of
// every transaction.
func WithDefaultOptions(opts Options) DomainOption {
	return func(d *Domain) { d.defaults = opts.Clone() }
}

func WithTracerProvider(tp trace.TracerProvider) DomainOption {
	return func(d *Domain) { d.tracer = tp.Tracer(tracerName) }
}

// WithMaxTriggerRounds bounds how many times triggers are run on the
// changes of their own commands before a commit is rolled back.
func WithMaxTriggerRounds(n int) DomainOption {
	return func(d *Domain) { d.maxRounds = n }
}

// NewDomain takes control of m: from now on m may only be changed inside
// write transactions of the returned domain.
func NewDomain(m *model.Model, opts ...DomainOption) *Domain {
	d := &Domain{
		model:     m,
		log:       slog.Default(),
		factory:   validate.NewFactory(),
		defaults:  Options{},
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		maxRounds: defaultMaxRounds,
		recorder:  change.NewRecorder(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.router = &router{d: d}
	m.AddListener(d.recorder)
	m.AddListener(d.router)
	m.SetGuard(d.guard)
	return d
}

// Close releases the model. It does not wait for active transactions.
func (d *Domain) Close() {
	d.model.RemoveListener(d.recorder)
	d.model.RemoveListener(d.router)
	d.model.SetGuard(nil)
}

func (d *Domain) Model() *model.Model {
	return d.model
}

func (d *Domain) Recorder() *change.Recorder {
	return d.recorder
}

// ActiveTransaction returns the innermost active transaction, or nil.
func (d *Domain) ActiveTransaction() *Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Validator returns the validator of the active root transaction, or nil.
func (d *Domain) Validator() validate.Validator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validator
}

// NewTransaction creates a transaction owned by the owner of ctx. It is
// not started.
func (d *Domain) NewTransaction(ctx context.Context, opts Options) (*Transaction, error) {
	o := OwnerFrom(ctx)
	if o == nil {
		return nil, ErrNoOwner
	}
	return newTransaction(d, o, opts), nil
}

// Begin creates and starts a transaction.
func (d *Domain) Begin(ctx context.Context, opts Options) (*Transaction, error) {
	tx, err := d.NewTransaction(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := tx.Start(ctx); err != nil {
		return nil, err
	}
	return tx, nil
}

// guard allows mutations only from the owner of an active write
// transaction.
func (d *Domain) guard(ctx context.Context) error {
	d.mu.Lock()
	tx := d.active
	d.mu.Unlock()
	if tx == nil {
		return ErrNoTransaction
	}
	if o := OwnerFrom(ctx); o != tx.owner {
		return fmt.Errorf("%w: %s is owned by %s, not %s", ErrNotOwner, tx, tx.owner, o)
	}
	if tx.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, tx)
	}
	return nil
}

// router hands notifications to the active transaction and, when it
// validates, to the validator.
type router struct {
	d *Domain
}

func (r *router) Notify(_ context.Context, n *model.Notification) {
	d := r.d
	d.mu.Lock()
	tx, v := d.active, d.validator
	d.mu.Unlock()
	if tx == nil {
		return
	}
	tx.add(n)
	if v != nil && validationEnabled(tx) {
		v.Add(tx, n)
	}
}
