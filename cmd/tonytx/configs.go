package main

import (
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"
)

type MainConfig struct {
	Color bool `cli:"name=color desc='color the report'"`
	Gops  bool `cli:"name=gops desc='start a gops diagnostics agent'"`

	Main *cli.Command
}

// palette returns the report colors for w. Colors are on with -color,
// off when -color=false was given, and otherwise on for terminals.
func (cfg *MainConfig) palette(w io.Writer) *palette {
	p := newPalette()
	on := cfg.Color
	if !on && !cfg.colorSet() {
		if f, ok := w.(*os.File); ok {
			on = isatty.IsTerminal(f.Fd())
		}
	}
	p.set(on)
	return p
}

func (cfg *MainConfig) colorSet() bool {
	if cfg.Main == nil {
		return false
	}
	for _, opt := range cfg.Main.Opts {
		if opt.Name == "color" {
			return opt.Value != nil
		}
	}
	return false
}

type palette struct {
	ok, bad, warn, dim *color.Color
}

func newPalette() *palette {
	return &palette{
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow),
		dim:  color.New(color.Faint),
	}
}

func (p *palette) set(on bool) {
	for _, c := range []*color.Color{p.ok, p.bad, p.warn, p.dim} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

type RunConfig struct {
	*MainConfig
	Patch   bool `cli:"name=patch desc='print and verify a JSON patch per committed group'"`
	Verbose bool `cli:"name=v desc='print the changes of each group'"`

	Run *cli.Command
}

type CheckConfig struct {
	*MainConfig

	Check *cli.Command
}

type ContendConfig struct {
	*MainConfig
	N    int `cli:"name=n desc='number of contending owners'"`
	Hold int `cli:"name=hold desc='milliseconds each owner holds the lock'"`

	Contend *cli.Command
}

func (cfg *ContendConfig) hold() time.Duration {
	return time.Duration(cfg.Hold) * time.Millisecond
}
