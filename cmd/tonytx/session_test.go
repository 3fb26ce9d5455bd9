package main

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/txn"
	"github.com/signadot/tony-txn/validate"
)

const sessionYAML = `
document:
  title: draft
  tags: [a, b]
  rev: 1
constraints:
- name: title-set
  when: path == "$.title"
  check: value != ""
  message: title must not be empty
groups:
- name: publish
  steps:
  - {op: set, path: $.title, value: final}
  - {op: append, path: $.tags, value: c}
  - {op: set, path: $.rev, value: 2}
  groups:
  - name: retag
    steps:
    - {op: remove, path: $.tags, index: 0}
  - name: bad-retag
    steps:
    - {op: insert, path: $.tags, index: 0, value: z}
    - {op: remove, path: $.tags, index: 9}
- name: blank
  steps:
  - {op: set, path: $.title, value: ""}
- name: abandoned
  steps:
  - {op: delete, path: $.tags}
  groups:
  - name: inner
    steps:
    - {op: set, path: $.rev, value: 3}
    abort: changed my mind
- name: broken
  steps:
  - {op: replace, path: $.tags, index: 0, value: q}
  - {op: delete, path: $.missing}
`

func runSession(t *testing.T, src string, withPatch bool) (*txn.Domain, []*Outcome) {
	t.Helper()
	s, err := ParseSession([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.Domain()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	ctx := txn.WithOwner(context.Background(), txn.NewOwner("test"))
	return d, s.Run(ctx, d, withPatch)
}

func TestRunSession(t *testing.T) {
	d, outs := runSession(t, sessionYAML, true)

	want := map[string]any{
		"title": "final",
		"tags":  []any{"b", "c"},
		"rev":   int64(2),
	}
	if diff := cmp.Diff(want, ir.ToAny(d.Model().Root())); diff != "" {
		t.Errorf("document (-want +got):\n%s", diff)
	}

	type result struct {
		Name      string
		Committed bool
		Children  []result
	}
	var summarize func(os []*Outcome) []result
	summarize = func(outs []*Outcome) []result {
		var res []result
		for _, o := range outs {
			res = append(res, result{o.Name, o.Committed, summarize(o.Children)})
		}
		return res
	}
	wantResults := []result{
		{"publish", true, []result{{"retag", true, nil}, {"bad-retag", false, nil}}},
		{"blank", false, nil},
		{"abandoned", false, []result{{"inner", false, nil}}},
		{"broken", false, nil},
	}
	if diff := cmp.Diff(wantResults, summarize(outs)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}

	if !errors.Is(outs[0].Children[1].Err, ir.ErrIndex) {
		t.Errorf("bad-retag: %v", outs[0].Children[1].Err)
	}
	var rb *txn.RollbackError
	if !errors.As(outs[1].Err, &rb) || rb.Status.Severity != validate.Error {
		t.Errorf("blank: %v", outs[1].Err)
	}
	if !errors.As(outs[2].Err, &rb) || rb.Status.Message != "changed my mind" {
		t.Errorf("abandoned: %v", outs[2].Err)
	}
	if !errors.Is(outs[3].Err, ir.ErrNotFound) {
		t.Errorf("broken: %v", outs[3].Err)
	}

	if outs[0].Patch == nil {
		t.Fatal("no patch for committed group")
	}
	for _, o := range outs[1:] {
		if o.Patch != nil || o.Log != nil {
			t.Errorf("%s: rolled back group has patch or log", o.Name)
		}
	}
}

func TestRunWithoutPatch(t *testing.T) {
	_, outs := runSession(t, sessionYAML, false)
	if outs[0].Patch != nil {
		t.Error("patch computed without asking")
	}
	if outs[0].Log == nil || len(outs[0].Log.Entries()) != 4 {
		t.Errorf("publish log %v", outs[0].Log)
	}
}

func TestSessionOptions(t *testing.T) {
	src := `
document: {n: 1}
constraints:
- {name: small, check: 'typeof(value) != "number" || value < 10'}
options: {no-validation: true}
groups:
- name: big
  steps: [{op: set, path: $.n, value: 100}]
- name: validated
  options: {no-validation: false}
  steps: [{op: set, path: $.n, value: 200}]
`
	d, outs := runSession(t, src, false)
	if !outs[0].Committed || outs[1].Committed {
		t.Fatalf("big committed=%t validated committed=%t", outs[0].Committed, outs[1].Committed)
	}
	if diff := cmp.Diff(map[string]any{"n": int64(100)}, ir.ToAny(d.Model().Root())); diff != "" {
		t.Errorf("document (-want +got):\n%s", diff)
	}
}

func TestParseSessionErrors(t *testing.T) {
	for _, src := range []string{
		"groups: [{steps: [{op: frob, path: $.a}]}]",
		"groups: [{groups: [{steps: [{op: set, path: 'a['}]}]}]",
		"groups: {not: a list}",
	} {
		if _, err := ParseSession([]byte(src)); err == nil {
			t.Errorf("%q: no error", src)
		}
	}
	_, err := ParseSession([]byte("groups: [{steps: [{op: frob, path: $.a}]}]"))
	if !errors.Is(err, errBadStep) {
		t.Errorf("got %v", err)
	}
}

func TestCheck(t *testing.T) {
	for _, c := range []struct {
		title string
		sev   validate.Severity
	}{
		{"ok", validate.OK},
		{"", validate.Error},
	} {
		s, err := ParseSession([]byte(`
document: {title: ` + "'" + c.title + "'" + `, tags: [x, ""]}
constraints:
- name: title-set
  when: path == "$.title"
  check: value != ""
- name: tag-set
  when: 'path startsWith "$.tags"'
  check: value != ""
  severity: warning
`))
		if err != nil {
			t.Fatal(err)
		}
		d, err := s.Domain()
		if err != nil {
			t.Fatal(err)
		}
		st, err := s.Check(context.Background(), d)
		d.Close()
		if err != nil {
			t.Fatal(err)
		}
		want := max(c.sev, validate.Warning)
		if st.Severity != want {
			t.Errorf("title %q: got %v", c.title, st)
		}
		if !strings.Contains(st.String(), "$.tags[1]") {
			t.Errorf("title %q: tag problem not reported: %v", c.title, st)
		}
	}
}

func TestLeafNotifications(t *testing.T) {
	root := ir.FromKeyVals([]ir.KeyVal{
		{Key: "a", Val: ir.FromInt(1)},
		{Key: "b", Val: ir.FromSlice([]*ir.Node{ir.FromString("x"), ir.FromBool(true)})},
	})
	var got []string
	for _, n := range leafNotifications(root) {
		got = append(got, n.String())
	}
	want := []string{"set $.a = 1", "replace $.b[0] = x", "replace $.b[1] = true"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestContend(t *testing.T) {
	res, err := Contend(context.Background(), 6, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.MaxInside != 1 {
		t.Errorf("%d writers inside at once", res.MaxInside)
	}
	got := slices.Clone(res.Order)
	slices.Sort(got)
	want := []string{"owner-0", "owner-1", "owner-2", "owner-3", "owner-4", "owner-5"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("admitted (-want +got):\n%s", diff)
	}
}

func TestReport(t *testing.T) {
	_, outs := runSession(t, sessionYAML, false)
	p := newPalette()
	p.set(false)
	buf := &bytes.Buffer{}
	for _, o := range outs {
		report(buf, p, o, true)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, prefix := range []string{
		"committed publish",
		"  set $.title: ",
		"  add $.tags[2]",
	} {
		if !slices.ContainsFunc(lines, func(l string) bool { return strings.HasPrefix(l, prefix) }) {
			t.Errorf("no line starting %q in\n%s", prefix, buf)
		}
	}
	for _, sub := range []string{"  rolled back bad-retag", "rolled back blank", "rolled back broken"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("report lacks %q:\n%s", sub, buf)
		}
	}
}
