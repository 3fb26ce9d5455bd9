package debug

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/signadot/tony-txn/ir"
)

// Logf writes to stderr, rendering documents and JSON-ish values in
// readable form.
func Logf(msg string, args ...any) {
	for i := range args {
		a := args[i]
		switch x := a.(type) {
		case map[string]any, []any, json.Number:
			d, err := json.MarshalIndent(a, "   |", "  ")
			if err != nil {
				args[i] = fmt.Sprintf("%v", a)
				continue
			}
			args[i] = string(d)
		case *ir.Node:
			args[i] = ir.MustYAML(x)
		case bool, string, float64, int:

		default:
		}
	}
	fmt.Fprintf(os.Stderr, msg, args...)
}
