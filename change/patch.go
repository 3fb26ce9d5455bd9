package change

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// JSONPatch renders the changes recorded in l as an RFC 6902 patch that
// takes the document from its state before the changes to its state after
// them.
func JSONPatch(l Log) ([]byte, error) {
	es := l.Entries()
	ops := make([]map[string]any, 0, len(es))
	for _, e := range es {
		op, err := patchOp(e)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return json.Marshal(ops)
}

func patchOp(e *Entry) (map[string]any, error) {
	switch e.Kind {
	case model.Set:
		if e.Old == nil {
			return map[string]any{"op": "add", "path": e.Pointer, "value": ir.ToAny(e.New)}, nil
		}
		return map[string]any{"op": "replace", "path": e.Pointer, "value": ir.ToAny(e.New)}, nil
	case model.Replace:
		return map[string]any{"op": "replace", "path": e.Pointer, "value": ir.ToAny(e.New)}, nil
	case model.Add:
		return map[string]any{"op": "add", "path": e.Pointer, "value": ir.ToAny(e.New)}, nil
	case model.Unset, model.Remove:
		return map[string]any{"op": "remove", "path": e.Pointer}, nil
	}
	return nil, fmt.Errorf("unknown entry kind %s", e.Kind)
}

// Summary renders e on one line. String replacements show a character
// diff, with deletions in [-...-] and insertions in {+...+}.
func Summary(e *Entry) string {
	switch e.Kind {
	case model.Unset, model.Remove:
		return fmt.Sprintf("%s %s (was %s)", e.Kind, e.Path, ir.MustYAML(e.Old))
	}
	if e.Old == nil {
		return fmt.Sprintf("%s %s = %s", e.Kind, e.Path, ir.MustYAML(e.New))
	}
	if e.Old.Type == ir.StringType && e.New.Type == ir.StringType {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.Path, stringDiff(e.Old.String, e.New.String))
	}
	return fmt.Sprintf("%s %s: %s -> %s", e.Kind, e.Path, ir.MustYAML(e.Old), ir.MustYAML(e.New))
}

func stringDiff(from, to string) string {
	diffCfg := diffpatch.New()
	diffs := diffCfg.DiffMain(from, to, false)
	diffs = diffCfg.DiffCleanupSemantic(diffs)
	buf := &strings.Builder{}
	for _, d := range diffs {
		switch d.Type {
		case diffpatch.DiffEqual:
			buf.WriteString(d.Text)
		case diffpatch.DiffDelete:
			buf.WriteString("[-" + d.Text + "-]")
		case diffpatch.DiffInsert:
			buf.WriteString("{+" + d.Text + "+}")
		}
	}
	return buf.String()
}
