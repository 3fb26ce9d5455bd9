// Package model provides a mutable document that reports every change to
// its listeners.
package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/signadot/tony-txn/ir"
)

var (
	ErrRoot     = errors.New("cannot mutate document root")
	ErrNotSlot  = errors.New("path does not name a field or element")
	ErrNotArray = errors.New("not an array")
)

// Listener receives notifications synchronously, in the goroutine that
// performed the mutation.
type Listener interface {
	Notify(ctx context.Context, n *Notification)
}

type ListenerFunc func(ctx context.Context, n *Notification)

func (f ListenerFunc) Notify(ctx context.Context, n *Notification) {
	f(ctx, n)
}

// Guard is consulted before every mutation. A non-nil error vetoes the
// mutation and is returned to the caller.
type Guard func(ctx context.Context) error

// Model is a document plus its notification stream.
//
// The model takes no locks around the document itself; callers coordinate
// access through an editing domain.
type Model struct {
	root *ir.Node

	mu        sync.Mutex
	listeners []Listener
	guard     Guard
}

// New returns a model editing root, which must be detached.
func New(root *ir.Node) (*Model, error) {
	if root == nil {
		root = ir.FromKeyVals(nil)
	}
	if root.Parent != nil {
		return nil, fmt.Errorf("%w: %s", ir.ErrAttached, root.Path())
	}
	return &Model{root: root}, nil
}

func (m *Model) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters l. Listeners of uncomparable types, such as
// ListenerFunc, cannot be told apart and are never removed.
func (m *Model) RemoveListener(l Listener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return x == l })
}

// Listeners returns the number of registered listeners.
func (m *Model) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// SetGuard installs g, replacing any previous guard. A nil guard allows
// every mutation.
func (m *Model) SetGuard(g Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guard = g
}

// Root returns the live document root.
func (m *Model) Root() *ir.Node {
	return m.root
}

// Snapshot returns a deep copy of the document.
func (m *Model) Snapshot() *ir.Node {
	return m.root.Clone()
}

// Get returns the live node at path.
func (m *Model) Get(path string) (*ir.Node, error) {
	return m.root.Lookup(path)
}

// Set sets the slot named by path. A field path adds or replaces the
// field; an index path replaces the array element.
func (m *Model) Set(ctx context.Context, path string, v *ir.Node) error {
	target, last, err := m.slot(path)
	if err != nil {
		return err
	}
	if last.Index != nil {
		return m.ReplaceAt(ctx, target.Path(), *last.Index, v)
	}
	if err := m.check(ctx); err != nil {
		return err
	}
	v = m.own(v)
	old, i, err := ir.SetField(target, *last.Field, v)
	if err != nil {
		return err
	}
	m.notify(ctx, &Notification{
		Kind:   Set,
		Target: target,
		Field:  *last.Field,
		Index:  i,
		Old:    old,
		New:    v,
		Path:   slotPath(target, *last.Field, i),
	})
	return nil
}

// Delete removes the field or array element named by path.
func (m *Model) Delete(ctx context.Context, path string) error {
	target, last, err := m.slot(path)
	if err != nil {
		return err
	}
	if last.Index != nil {
		return m.RemoveAt(ctx, target.Path(), *last.Index)
	}
	if err := m.check(ctx); err != nil {
		return err
	}
	p := slotPath(target, *last.Field, 0)
	old, i, err := ir.DeleteField(target, *last.Field)
	if err != nil {
		return err
	}
	m.notify(ctx, &Notification{
		Kind:   Unset,
		Target: target,
		Field:  *last.Field,
		Index:  i,
		Old:    old,
		Path:   p,
	})
	return nil
}

// Insert inserts v at index of the array at path.
func (m *Model) Insert(ctx context.Context, path string, index int, v *ir.Node) error {
	arr, err := m.array(path)
	if err != nil {
		return err
	}
	if err := m.check(ctx); err != nil {
		return err
	}
	v = m.own(v)
	if err := ir.InsertValue(arr, index, v); err != nil {
		return err
	}
	m.notify(ctx, &Notification{
		Kind:   Add,
		Target: arr,
		Index:  index,
		New:    v,
		Path:   slotPath(arr, "", index),
	})
	return nil
}

// Append adds v at the end of the array at path.
func (m *Model) Append(ctx context.Context, path string, v *ir.Node) error {
	arr, err := m.array(path)
	if err != nil {
		return err
	}
	return m.Insert(ctx, path, len(arr.Values), v)
}

// RemoveAt removes the element at index of the array at path.
func (m *Model) RemoveAt(ctx context.Context, path string, index int) error {
	arr, err := m.array(path)
	if err != nil {
		return err
	}
	if err := m.check(ctx); err != nil {
		return err
	}
	old, err := ir.RemoveValue(arr, index)
	if err != nil {
		return err
	}
	m.notify(ctx, &Notification{
		Kind:   Remove,
		Target: arr,
		Index:  index,
		Old:    old,
		Path:   slotPath(arr, "", index),
	})
	return nil
}

// ReplaceAt replaces the element at index of the array at path.
func (m *Model) ReplaceAt(ctx context.Context, path string, index int, v *ir.Node) error {
	arr, err := m.array(path)
	if err != nil {
		return err
	}
	if err := m.check(ctx); err != nil {
		return err
	}
	v = m.own(v)
	old, err := ir.ReplaceValue(arr, index, v)
	if err != nil {
		return err
	}
	m.notify(ctx, &Notification{
		Kind:   Replace,
		Target: arr,
		Index:  index,
		Old:    old,
		New:    v,
		Path:   slotPath(arr, "", index),
	})
	return nil
}

func (m *Model) check(ctx context.Context) error {
	m.mu.Lock()
	g := m.guard
	m.mu.Unlock()
	if g == nil {
		return nil
	}
	return g(ctx)
}

func (m *Model) notify(ctx context.Context, n *Notification) {
	m.mu.Lock()
	ls := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, l := range ls {
		l.Notify(ctx, n)
	}
}

// slot resolves path to its containing node and final segment.
func (m *Model) slot(path string) (*ir.Node, *ir.PathSeg, error) {
	seg, err := ir.ParsePath(path)
	if err != nil {
		return nil, nil, err
	}
	head, last := seg.Split()
	if last == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrRoot, path)
	}
	if last.Field == nil && last.Index == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotSlot, path)
	}
	target, err := m.root.LookupSeg(head)
	if err != nil {
		return nil, nil, err
	}
	return target, last, nil
}

func (m *Model) array(path string) (*ir.Node, error) {
	arr, err := m.root.Lookup(path)
	if err != nil {
		return nil, err
	}
	if arr.Type != ir.ArrayType {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotArray, path, arr.Type)
	}
	return arr, nil
}

// own returns v ready to attach: nil becomes null, and attached values and
// the root itself are copied.
func (m *Model) own(v *ir.Node) *ir.Node {
	if v == nil {
		return ir.Null()
	}
	if v.Parent != nil || v == m.root {
		return v.Clone()
	}
	return v
}
