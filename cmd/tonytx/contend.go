package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scott-cotton/cli"

	"github.com/signadot/tony-txn/ir"
	"github.com/signadot/tony-txn/model"
	"github.com/signadot/tony-txn/txn"
)

func contend(cfg *ContendConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Contend.Parse(cc, args)
	if err != nil {
		cfg.Contend.Usage(cc, err)
		return cli.ExitCodeErr(1)
	}
	if cfg.N < 1 {
		return fmt.Errorf("%w: -n must be positive, got %d", cli.ErrUsage, cfg.N)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := Contend(ctx, cfg.N, cfg.hold())
	if err != nil {
		return err
	}
	p := cfg.palette(cc.Out)
	fmt.Fprintf(cc.Out, "admitted %s\n", strings.Join(res.Order, " "))
	col := p.ok
	if res.MaxInside != 1 {
		col = p.bad
	}
	fmt.Fprintf(cc.Out, "max concurrent writers %s\n", col.Sprint(res.MaxInside))
	return nil
}

type ContendResult struct {
	// Order lists the owners in the order they were admitted.
	Order     []string
	MaxInside int
}

// Contend has n owners each run a write transaction against one domain,
// holding it for hold, and reports the order of admission along with the
// largest number of owners seen inside a transaction at once.
func Contend(ctx context.Context, n int, hold time.Duration) (*ContendResult, error) {
	m, err := model.New(ir.FromKeyVals([]ir.KeyVal{{Key: "order", Val: ir.FromSlice(nil)}}))
	if err != nil {
		return nil, err
	}
	d := txn.NewDomain(m, txn.WithLogger(theLog))
	defer d.Close()

	var (
		inside, most atomic.Int32
		wg           sync.WaitGroup
	)
	errs := make([]error, n)
	for i := range n {
		name := fmt.Sprintf("owner-%d", i)
		octx := txn.WithOwner(ctx, txn.NewOwner(name))
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.Execute(octx, nil, func(ctx context.Context) error {
				cur := inside.Add(1)
				defer inside.Add(-1)
				for {
					old := most.Load()
					if cur <= old || most.CompareAndSwap(old, cur) {
						break
					}
				}
				if err := m.Append(ctx, "$.order", ir.FromString(name)); err != nil {
					return err
				}
				select {
				case <-time.After(hold):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	res := &ContendResult{MaxInside: int(most.Load())}
	order, err := m.Get("$.order")
	if err != nil {
		return nil, err
	}
	for _, v := range order.Values {
		res.Order = append(res.Order, v.String)
	}
	return res, nil
}
