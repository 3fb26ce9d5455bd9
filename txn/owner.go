package txn

import (
	"context"
	"fmt"
	"sync/atomic"
)

var ownerIDs atomic.Uint64

// Owner identifies the caller driving a transaction. A transaction may
// only be started, committed or rolled back through a context carrying
// the owner it was created with.
type Owner struct {
	id   uint64
	name string
}

func NewOwner(name string) *Owner {
	return &Owner{id: ownerIDs.Add(1), name: name}
}

func (o *Owner) ID() uint64 {
	return o.id
}

func (o *Owner) Name() string {
	return o.name
}

func (o *Owner) String() string {
	if o == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s#%d", o.name, o.id)
}

type ownerKey struct{}

func WithOwner(ctx context.Context, o *Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, o)
}

// OwnerFrom returns the owner carried by ctx, or nil.
func OwnerFrom(ctx context.Context) *Owner {
	o, _ := ctx.Value(ownerKey{}).(*Owner)
	return o
}

// ensureOwner returns ctx, with a fresh owner named name if it has none.
func ensureOwner(ctx context.Context, name string) context.Context {
	if OwnerFrom(ctx) != nil {
		return ctx
	}
	return WithOwner(ctx, NewOwner(name))
}
