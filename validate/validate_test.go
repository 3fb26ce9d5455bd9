package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
)

type fakeTx struct {
	lineage []uint64
}

func (tx fakeTx) ID() uint64        { return tx.lineage[len(tx.lineage)-1] }
func (tx fakeTx) Lineage() []uint64 { return tx.lineage }

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		sev  Severity
		kids int
	}{
		{"empty", nil, OK, 0},
		{"all ok", []Status{StatusOK, StatusOK}, OK, 0},
		{"single", []Status{StatusOK, NewStatus(Warning, "w")}, Warning, 0},
		{"max", []Status{NewStatus(Warning, "w"), NewStatus(Error, "e"), NewStatus(Info, "i")}, Error, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in...)
			if got.Severity != tt.sev || len(got.Children) != tt.kids {
				t.Errorf("got %v", got)
			}
		})
	}
}

func TestStatusErr(t *testing.T) {
	if err := NewStatus(Warning, "w").Err(); err != nil {
		t.Errorf("warning became error %v", err)
	}
	err := Errorf(Error, "bad %d", 1).Err()
	var se *StatusError
	if !errors.As(err, &se) || se.Status.Message != "bad 1" {
		t.Errorf("got %v", err)
	}
}

func TestSeverityText(t *testing.T) {
	var s Severity
	if err := s.UnmarshalText([]byte("Warning")); err != nil || s != Warning {
		t.Errorf("got %v %v", s, err)
	}
	if err := s.UnmarshalText([]byte("fatal")); err == nil {
		t.Error("expected error")
	}
}

func note(path string) *model.Notification {
	root := ir.FromMap(map[string]*ir.Node{"x": ir.FromInt(1)})
	return &model.Notification{Kind: model.Set, Target: root, Field: "x", New: ir.Get(root, "x"), Path: path}
}

func TestReadWriteRemoveDescendants(t *testing.T) {
	var seen []string
	v := NewReadWrite(Func(func(_ context.Context, n *model.Notification) Status {
		seen = append(seen, n.Path)
		return StatusOK
	}))
	root := fakeTx{[]uint64{1}}
	child := fakeTx{[]uint64{1, 2}}
	grandchild := fakeTx{[]uint64{1, 2, 3}}
	sibling := fakeTx{[]uint64{1, 4}}
	v.Add(root, note("$.root"))
	v.Add(child, note("$.child"))
	v.Add(grandchild, note("$.grandchild"))
	v.Add(sibling, note("$.sibling"))
	v.Remove(child)
	if got := v.Pending(); got != 2 {
		t.Errorf("pending %d, want 2", got)
	}
	if st := v.Validate(context.Background()); !st.IsOK() {
		t.Errorf("got %v", st)
	}
	if diff := cmp.Diff([]string{"$.root", "$.sibling"}, seen); diff != "" {
		t.Errorf("validated (-want +got):\n%s", diff)
	}
}

func TestValidateCancelled(t *testing.T) {
	v := NewReadWrite(Func(func(context.Context, *model.Notification) Status { return StatusOK }))
	v.Add(fakeTx{[]uint64{1}}, note("$.x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if st := v.Validate(ctx); st.Severity != Cancel {
		t.Errorf("got %v", st)
	}
}

func TestReadOnlyValidator(t *testing.T) {
	f := NewFactory(Func(func(context.Context, *model.Notification) Status {
		return NewStatus(Error, "never")
	}))
	v := f.NewReadOnlyValidator()
	v.Add(fakeTx{[]uint64{1}}, note("$.x"))
	if v.Pending() != 0 || !v.Validate(context.Background()).IsOK() {
		t.Error("read-only validator kept work")
	}
	rw := f.NewReadWriteValidator()
	rw.Add(fakeTx{[]uint64{1}}, note("$.x"))
	if st := rw.Validate(context.Background()); st.Severity != Error {
		t.Errorf("got %v", st)
	}
}

const constraintsYAML = `
constraints:
- name: rev-positive
  when: field == "rev"
  check: value > 0
  message: rev must be positive
- name: title-string
  when: path == "$.title" && kind != "unset"
  check: typeof(value) == "string"
  severity: warning
- name: owner-known
  check: getpath("$.owner") != nil
`

func TestExprConstraints(t *testing.T) {
	cs, err := ParseConstraints([]byte(constraintsYAML))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ir.ParseYAML([]byte("owner: kim\nrev: 1\ntitle: t\n"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.New(doc)
	if err != nil {
		t.Fatal(err)
	}
	v := NewReadWrite(cs...)
	tx := fakeTx{[]uint64{7}}
	m.AddListener(model.ListenerFunc(func(_ context.Context, n *model.Notification) { v.Add(tx, n) }))
	ctx := context.Background()

	if err := m.Set(ctx, "$.rev", ir.FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if st := v.Validate(ctx); !st.IsOK() {
		t.Fatalf("got %v", st)
	}
	if err := m.Set(ctx, "$.title", ir.FromInt(3)); err != nil {
		t.Fatal(err)
	}
	if st := v.Validate(ctx); st.Severity != Warning {
		t.Errorf("got %v, want warning", st)
	}
	if err := m.Set(ctx, "$.rev", ir.FromInt(-1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "$.owner"); err != nil {
		t.Fatal(err)
	}
	st := v.Validate(ctx)
	if st.Severity != Error {
		t.Fatalf("got %v, want error", st)
	}
	s := st.String()
	for _, want := range []string{"rev must be positive", "owner-known", "title-string"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q missing from %q", want, s)
		}
	}
}

func TestExprCompileErrors(t *testing.T) {
	for _, c := range []*ExprConstraint{
		{Name: "empty"},
		{Name: "syntax", Check: "value >"},
		{Name: "when", When: "(", Check: "true"},
	} {
		if err := c.Compile(); err == nil {
			t.Errorf("%s: expected error", c.Name)
		}
	}
	c := &ExprConstraint{Name: "raw", Check: "true"}
	if st := c.Constraint().Check(context.Background(), note("$.x")); st.Severity != Error {
		t.Errorf("uncompiled constraint passed: %v", st)
	}
}

func TestDocumentConvertedOncePerPass(t *testing.T) {
	root, err := ir.ParseYAML([]byte("a: 1\nb: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	var docs []map[string]any
	v := NewReadWrite(Func(func(ctx context.Context, n *model.Notification) Status {
		docs = append(docs, docOf(ctx, n.Target.Root()).(map[string]any))
		return StatusOK
	}))
	tx := fakeTx{lineage: []uint64{1}}
	for _, f := range []string{"a", "b"} {
		n := &model.Notification{Kind: model.Set, Target: root, Field: f, New: ir.Get(root, f), Path: "$." + f}
		v.Add(tx, n)
	}
	v.Validate(context.Background())
	v.Validate(context.Background())
	if len(docs) != 4 {
		t.Fatalf("constraint ran %d times", len(docs))
	}
	same := func(a, b map[string]any) bool {
		a["marker"] = true
		defer delete(a, "marker")
		_, ok := b["marker"]
		return ok
	}
	if !same(docs[0], docs[1]) || !same(docs[2], docs[3]) {
		t.Error("document converted more than once in a pass")
	}
	if same(docs[1], docs[2]) {
		t.Error("document shared between passes")
	}
}
