package main

import (
	"context"
	"fmt"

	"github.com/scott-cotton/cli"

	"github.com/signadot/tony-txn/txn"
	"github.com/signadot/tony-txn/validate"
)

func check(cfg *CheckConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Check.Parse(cc, args)
	if err != nil {
		cfg.Check.Usage(cc, err)
		return cli.ExitCodeErr(1)
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: check requires one argument, a session file", cli.ErrUsage)
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

	ctx := txn.WithOwner(context.Background(), txn.NewOwner("check"))
	st, err := s.Check(ctx, d)
	if err != nil {
		return err
	}
	p := cfg.palette(cc.Out)
	if st.IsOK() {
		fmt.Fprintln(cc.Out, p.ok.Sprint("ok"))
		return nil
	}
	problems := st.Children
	if len(problems) == 0 {
		problems = []validate.Status{st}
	}
	for _, c := range problems {
		col := p.warn
		if c.Severity >= validate.Error {
			col = p.bad
		}
		fmt.Fprintln(cc.Out, col.Sprint(c.String()))
	}
	if st.Err() != nil {
		return cli.ExitCodeErr(1)
	}
	return nil
}
