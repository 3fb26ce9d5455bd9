package validate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-yaml"
	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
)

// exprEnv is the environment of constraint expressions.
type exprEnv struct {
	Kind     string                      `expr:"kind"`
	Path     string                      `expr:"path"`
	Field    string                      `expr:"field"`
	Index    int                         `expr:"index"`
	Value    any                         `expr:"value"`
	Old      any                         `expr:"old"`
	Doc      any                         `expr:"doc"`
	GetPath  func(string) (any, error)   `expr:"getpath"`
	ListPath func(string) ([]any, error) `expr:"listpath"`
}

type passKey struct{}

// pass holds what constraints share during one Validate call.
type pass struct {
	mu   sync.Mutex
	docs map[*ir.Node]any
}

func withPass(ctx context.Context) context.Context {
	return context.WithValue(ctx, passKey{}, &pass{docs: map[*ir.Node]any{}})
}

// docOf converts the document at root, once per validation pass.
func docOf(ctx context.Context, root *ir.Node) any {
	p, _ := ctx.Value(passKey{}).(*pass)
	if p == nil {
		return ir.ToAny(root)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[root]
	if !ok {
		doc = ir.ToAny(root)
		p.docs[root] = doc
	}
	return doc
}

func newExprEnv(ctx context.Context, n *model.Notification) exprEnv {
	root := n.Target.Root()
	env := exprEnv{
		Kind:  n.Kind.String(),
		Path:  n.Path,
		Field: n.Field,
		Index: n.Index,
		Doc:   docOf(ctx, root),
		GetPath: func(p string) (any, error) {
			res, err := root.Lookup(p)
			if errors.Is(err, ir.ErrNotFound) || errors.Is(err, ir.ErrIndex) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return ir.ToAny(res), nil
		},
		ListPath: func(p string) ([]any, error) {
			ns, err := root.ListPath(nil, p)
			if err != nil {
				return nil, err
			}
			res := make([]any, len(ns))
			for i, x := range ns {
				res[i] = ir.ToAny(x)
			}
			return res, nil
		},
	}
	if n.New != nil {
		env.Value = ir.ToAny(n.New)
	}
	if n.Old != nil {
		env.Old = ir.ToAny(n.Old)
	}
	return env
}

var exprFuncs = []expr.Option{
	expr.Function("typeof", func(params ...any) (any, error) {
		switch params[0].(type) {
		case nil:
			return "null", nil
		case bool:
			return "bool", nil
		case string:
			return "string", nil
		case int64, float64:
			return "number", nil
		case []any:
			return "array", nil
		case map[string]any:
			return "object", nil
		}
		return fmt.Sprintf("%T", params[0]), nil
	},
		new(func(any) string)),
}

// ExprConstraint is a Constraint written as expr-lang expressions.
//
// When selects the notifications to check and defaults to true. Check
// must evaluate to true for the notification to pass; otherwise the
// constraint reports Severity with Message.
type ExprConstraint struct {
	Name     string
	When     string
	Check    string
	Severity Severity
	Message  string

	when  *vm.Program
	check *vm.Program
}

// Compile prepares c for use. It must be called before c is used as a
// constraint.
func (c *ExprConstraint) Compile() error {
	opts := append([]expr.Option{expr.Env(exprEnv{}), expr.AsBool()}, exprFuncs...)
	if c.When != "" {
		prg, err := expr.Compile(c.When, opts...)
		if err != nil {
			return fmt.Errorf("constraint %q when: %w", c.Name, err)
		}
		c.when = prg
	}
	if c.Check == "" {
		return fmt.Errorf("constraint %q has no check", c.Name)
	}
	prg, err := expr.Compile(c.Check, opts...)
	if err != nil {
		return fmt.Errorf("constraint %q check: %w", c.Name, err)
	}
	c.check = prg
	if c.Severity == OK {
		c.Severity = Error
	}
	return nil
}

// Constraint returns c adapted to the Constraint interface.
func (c *ExprConstraint) Constraint() Constraint {
	return Func(c.eval)
}

func (c *ExprConstraint) eval(ctx context.Context, n *model.Notification) Status {
	if c.check == nil {
		return Errorf(Error, "constraint %q is not compiled", c.Name)
	}
	env := newExprEnv(ctx, n)
	if c.when != nil {
		ok, err := expr.Run(c.when, env)
		if err != nil {
			return Errorf(Error, "constraint %q at %s: %v", c.Name, n.Path, err)
		}
		if !ok.(bool) {
			return StatusOK
		}
	}
	ok, err := expr.Run(c.check, env)
	if err != nil {
		return Errorf(Error, "constraint %q at %s: %v", c.Name, n.Path, err)
	}
	if ok.(bool) {
		return StatusOK
	}
	msg := c.Message
	if msg == "" {
		msg = "failed " + c.Check
	}
	return Errorf(c.Severity, "%s at %s: %s", c.Name, n.Path, msg)
}

// ConstraintConfig is the YAML form of a list of constraints.
type ConstraintConfig struct {
	Constraints []ConstraintSpec `yaml:"constraints"`
}

type ConstraintSpec struct {
	Name     string   `yaml:"name"`
	When     string   `yaml:"when"`
	Check    string   `yaml:"check"`
	Severity Severity `yaml:"severity"`
	Message  string   `yaml:"message"`
}

// ParseConstraints reads and compiles a ConstraintConfig.
func ParseConstraints(d []byte) ([]Constraint, error) {
	cfg := &ConstraintConfig{}
	if err := yaml.Unmarshal(d, cfg); err != nil {
		return nil, fmt.Errorf("constraints: %w", err)
	}
	return cfg.Build()
}

func (cfg *ConstraintConfig) Build() ([]Constraint, error) {
	res := make([]Constraint, 0, len(cfg.Constraints))
	for i := range cfg.Constraints {
		s := &cfg.Constraints[i]
		c := &ExprConstraint{
			Name:     s.Name,
			When:     s.When,
			Check:    s.Check,
			Severity: s.Severity,
			Message:  s.Message,
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("constraint-%d", i)
		}
		if err := c.Compile(); err != nil {
			return nil, err
		}
		res = append(res, c.Constraint())
	}
	return res, nil
}
