package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"
)

func tonytxMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	if cfg.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
		} else {
			defer agent.Close()
		}
	}
	shutdown, err := setupTracing(context.Background())
	if err != nil {
		theLog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			theLog.Warn("tracing shutdown", "error", err)
		}
	}()

	sub := cfg.Main.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err = sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}
