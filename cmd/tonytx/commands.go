package main

import (
	"github.com/scott-cotton/cli"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "tonytx").
		WithSynopsis("tonytx [opts] command [opts]").
		WithDescription("tonytx runs document edits in transactions.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return tonytxMain(cfg, cc, args)
		}).
		WithSubs(
			RunCommand(cfg),
			CheckCommand(cfg),
			ContendCommand(cfg))
}

func RunCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &RunConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Run, "run").
		WithAliases("r").
		WithSynopsis("run [-patch] [-v] session.yaml").
		WithDescription(runDescription).
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return run(cfg, cc, args)
		})
}

func CheckCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &CheckConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Check, "check").
		WithAliases("c").
		WithSynopsis("check session.yaml").
		WithDescription("check the document of a session against its constraints").
		WithRun(func(cc *cli.Context, args []string) error {
			return check(cfg, cc, args)
		})
}

func ContendCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ContendConfig{MainConfig: mainCfg, N: 4}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Contend, "contend").
		WithSynopsis("contend [-n N] [-hold ms]").
		WithDescription("race N owners for write transactions and report admission order").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return contend(cfg, cc, args)
		})
}

const runDescription = `run applies the edit groups of a session file in transactions.

A session file has the form

  document:
    title: draft
    tags: [a, b]
  constraints:
  - name: title-set
    when: path == "$.title"
    check: value != ""
    message: title must not be empty
  groups:
  - name: rename
    options: {no-validation: false}
    steps:
    - {op: set, path: $.title, value: final}
    - {op: append, path: $.tags, value: c}
    groups:
    - name: nested
      steps:
      - {op: remove, path: $.tags, index: 0}
  - name: abandoned
    steps:
    - {op: delete, path: $.tags}
    abort: changed my mind

Each top level group runs in its own transaction, nested groups in nested
transactions. Step ops are set, delete, insert, append, remove and replace;
insert, remove and replace take an index. A failing step rolls back its
group only. A group with abort aborts its transaction and every enclosing
one after its steps have run.

run reports the outcome of each group, and with -v the changes it made.
With -patch each committed group is also printed as a JSON patch, which
is checked to replay onto the document it started from.`
