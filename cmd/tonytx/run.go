package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/scott-cotton/cli"

	"github.com/signadot/tony-txn/change"
	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/txn"
)

func run(cfg *RunConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Run.Parse(cc, args)
	if err != nil {
		cfg.Run.Usage(cc, err)
		return cli.ExitCodeErr(1)
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: run requires one argument, a session file", cli.ErrUsage)
	}
	s, err := loadSession(args[0])
	if err != nil {
		return err
	}
	d, err := s.Domain()
	if err != nil {
		return fmt.Errorf("error loading %s: %w", args[0], err)
	}
	defer d.Close()

	ctx := txn.WithOwner(context.Background(), txn.NewOwner("run"))
	outs := s.Run(ctx, d, cfg.Patch)
	p := cfg.palette(cc.Out)
	for _, out := range outs {
		report(cc.Out, p, out, cfg.Verbose)
	}
	fmt.Fprintln(cc.Out, p.dim.Sprint("---"))
	fmt.Fprintln(cc.Out, ir.MustYAML(d.Model().Root()))
	// rolled back groups are reported, not failures of the run
	for _, out := range outs {
		if errors.Is(out.Err, errPatchReplay) {
			return out.Err
		}
	}
	return nil
}

func loadSession(path string) (*Session, error) {
	var (
		d   []byte
		err error
	)
	if path == "-" {
		d, err = io.ReadAll(os.Stdin)
	} else {
		d, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	s, err := ParseSession(d)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return s, nil
}

func report(w io.Writer, p *palette, o *Outcome, verbose bool) {
	indent := strings.Repeat("  ", o.Depth-1)
	switch {
	case o.Committed && o.Err == nil:
		fmt.Fprintf(w, "%s%s %s", indent, p.ok.Sprint("committed"), o.Name)
		if !o.Status.IsOK() {
			fmt.Fprintf(w, " %s", p.warn.Sprint(o.Status))
		}
		fmt.Fprintln(w)
	case o.Committed:
		fmt.Fprintf(w, "%s%s %s: %v\n", indent, p.bad.Sprint("committed"), o.Name, o.Err)
	default:
		fmt.Fprintf(w, "%s%s %s: %v\n", indent, p.bad.Sprint("rolled back"), o.Name, o.Err)
	}
	if verbose && o.Committed && o.Log != nil {
		for _, e := range o.Log.Entries() {
			fmt.Fprintf(w, "%s  %s\n", indent, p.dim.Sprint(change.Summary(e)))
		}
	}
	if o.Patch != nil {
		fmt.Fprintf(w, "%s  patch %s\n", indent, o.Patch)
	}
	for _, c := range o.Children {
		report(w, p, c, verbose)
	}
}
