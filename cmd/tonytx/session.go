package main

import (
	"context"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/goccy/go-yaml"

	"github.com/signadot/tony-txn/change"
	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/txn"
	"github.com/signadot/tony-txn/validate"
)

var (
	errBadStep     = errors.New("bad step")
	errPatchReplay = errors.New("patch does not replay")
)

// Session is a document, the constraints it must satisfy and groups of
// edits to run against it.
type Session struct {
	Document    any                       `yaml:"document"`
	Constraints []validate.ConstraintSpec `yaml:"constraints"`
	// Options are merged under the options of every transaction.
	Options map[string]any `yaml:"options"`
	Groups  []Group        `yaml:"groups"`
}

// Group is a list of steps run in one transaction, followed by nested
// groups run in nested transactions.
type Group struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
	Steps   []Step         `yaml:"steps"`
	Groups  []Group        `yaml:"groups"`
	// Abort, when set, aborts the transaction with this message once the
	// steps and nested groups are done.
	Abort string `yaml:"abort"`
}

type Step struct {
	Op    string `yaml:"op"`
	Path  string `yaml:"path"`
	Index int    `yaml:"index"`
	Value any    `yaml:"value"`
}

func ParseSession(d []byte) (*Session, error) {
	s := &Session{}
	if err := yaml.UnmarshalWithOptions(d, s, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := checkGroups(s.Groups, "groups"); err != nil {
		return nil, err
	}
	return s, nil
}

func checkGroups(gs []Group, where string) error {
	for i := range gs {
		g := &gs[i]
		at := fmt.Sprintf("%s[%d]", where, i)
		for j := range g.Steps {
			if err := g.Steps[j].check(); err != nil {
				return fmt.Errorf("%s.steps[%d]: %w", at, j, err)
			}
		}
		if err := checkGroups(g.Groups, at+".groups"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Step) check() error {
	switch s.Op {
	case "set", "delete", "insert", "append", "remove", "replace":
	default:
		return fmt.Errorf("%w: unknown op %q", errBadStep, s.Op)
	}
	if _, err := ir.ParsePath(s.Path); err != nil {
		return fmt.Errorf("%w: %w", errBadStep, err)
	}
	return nil
}

func (s *Step) apply(ctx context.Context, m *model.Model) error {
	v, err := ir.FromAny(s.Value)
	if err != nil {
		return err
	}
	switch s.Op {
	case "set":
		return m.Set(ctx, s.Path, v)
	case "delete":
		return m.Delete(ctx, s.Path)
	case "insert":
		return m.Insert(ctx, s.Path, s.Index, v)
	case "append":
		return m.Append(ctx, s.Path, v)
	case "remove":
		return m.RemoveAt(ctx, s.Path, s.Index)
	case "replace":
		return m.ReplaceAt(ctx, s.Path, s.Index, v)
	}
	return fmt.Errorf("%w: unknown op %q", errBadStep, s.Op)
}

func (s *Session) constraints() ([]validate.Constraint, error) {
	cfg := &validate.ConstraintConfig{Constraints: s.Constraints}
	return cfg.Build()
}

// Domain builds the editing domain of the session's document.
func (s *Session) Domain(opts ...txn.DomainOption) (*txn.Domain, error) {
	var root *ir.Node
	if s.Document != nil {
		var err error
		root, err = ir.FromAny(s.Document)
		if err != nil {
			return nil, fmt.Errorf("document: %w", err)
		}
	}
	m, err := model.New(root)
	if err != nil {
		return nil, err
	}
	cs, err := s.constraints()
	if err != nil {
		return nil, err
	}
	opts = append([]txn.DomainOption{
		txn.WithLogger(theLog),
		txn.WithValidatorFactory(validate.NewFactory(cs...)),
		txn.WithDefaultOptions(txn.Options(s.Options)),
	}, opts...)
	return txn.NewDomain(m, opts...), nil
}

// Outcome is the result of running a group.
type Outcome struct {
	Name      string
	Depth     int
	Committed bool
	Err       error
	Status    validate.Status
	Log       change.Log
	// Patch is set for committed top level groups when patches are asked for.
	Patch    []byte
	Children []*Outcome
}

// Run runs the groups of s against d, one top level transaction each.
// With withPatch, every committed top level group gets a JSON patch that
// has been checked to replay onto the document the group started from.
func (s *Session) Run(ctx context.Context, d *txn.Domain, withPatch bool) []*Outcome {
	res := make([]*Outcome, 0, len(s.Groups))
	for i := range s.Groups {
		g := &s.Groups[i]
		pre := d.Model().Snapshot()
		out := runGroup(ctx, d, g, 1)
		if withPatch && out.Committed && out.Log != nil && out.Err == nil {
			out.Patch, out.Err = patchOf(out.Log, pre, d.Model().Snapshot())
		}
		res = append(res, out)
	}
	return res
}

func runGroup(ctx context.Context, d *txn.Domain, g *Group, depth int) *Outcome {
	out := &Outcome{Name: g.Name, Depth: depth}
	if out.Name == "" {
		out.Name = fmt.Sprintf("group@%d", depth)
	}
	tx, err := d.Begin(ctx, txn.Options(g.Options))
	if err != nil {
		out.Err = err
		return out
	}
	if err := runSteps(ctx, d.Model(), g.Steps); err != nil {
		out.Err = errors.Join(err, tx.Rollback(ctx))
		out.Status = validate.Errorf(validate.Error, "%v", err)
		return out
	}
	for i := range g.Groups {
		out.Children = append(out.Children, runGroup(ctx, d, &g.Groups[i], depth+1))
	}
	if g.Abort != "" {
		tx.Abort(validate.NewStatus(validate.Error, g.Abort))
	}
	err = tx.Commit(ctx)
	out.Status = tx.Status()
	if err != nil {
		out.Err = err
		return out
	}
	out.Committed = true
	out.Log = tx.ChangeLog()
	return out
}

func runSteps(ctx context.Context, m *model.Model, steps []Step) error {
	for i := range steps {
		s := &steps[i]
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i, s.Op, s.Path, err)
		}
	}
	return nil
}

func patchOf(l change.Log, pre, post *ir.Node) ([]byte, error) {
	p, err := change.JSONPatch(l)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(p)
	if err != nil {
		return nil, err
	}
	from, err := ir.EncodeJSON(pre)
	if err != nil {
		return nil, err
	}
	got, err := patch.Apply(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPatchReplay, err)
	}
	want, err := ir.EncodeJSON(post)
	if err != nil {
		return nil, err
	}
	if !jsonpatch.Equal(got, want) {
		return nil, fmt.Errorf("%w: got %s want %s", errPatchReplay, got, want)
	}
	return p, nil
}

// Check validates every leaf of the document against the session's
// constraints, as if each had just been set, in a read-only transaction.
func (s *Session) Check(ctx context.Context, d *txn.Domain) (validate.Status, error) {
	cs, err := s.constraints()
	if err != nil {
		return validate.StatusOK, err
	}
	st := validate.StatusOK
	err = d.RunExclusive(ctx, func(ctx context.Context) error {
		tx := d.ActiveTransaction()
		v := validate.NewReadWrite(cs...)
		for _, n := range leafNotifications(d.Model().Root()) {
			v.Add(tx, n)
		}
		st = v.Validate(ctx)
		return nil
	})
	return st, err
}

func leafNotifications(root *ir.Node) []*model.Notification {
	var res []*model.Notification
	_ = root.Visit(func(y *ir.Node, isPost bool) (bool, error) {
		if isPost || y.Parent == nil || len(y.Values) != 0 {
			return true, nil
		}
		n := &model.Notification{Kind: model.Set, Target: y.Parent, New: y, Path: y.Path()}
		if y.Parent.Type == ir.ObjectType {
			n.Field = y.ParentField
			n.Index = y.ParentIndex
		} else {
			n.Kind = model.Replace
			n.Index = y.ParentIndex
		}
		res = append(res, n)
		return true, nil
	})
	return res
}
