package debug

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

type debug struct {
	Tx       bool `env:"TONY_TXN_DEBUG_TX"`
	Lock     bool `env:"TONY_TXN_DEBUG_LOCK"`
	Record   bool `env:"TONY_TXN_DEBUG_RECORD"`
	Validate bool `env:"TONY_TXN_DEBUG_VALIDATE"`
}

var d *debug

func init() {
	d = &debug{}
	if err := env.Parse(d); err != nil {
		fmt.Fprintf(os.Stderr, "debug: %v\n", err)
	}
}

func Tx() bool {
	return d.Tx
}
func Lock() bool {
	return d.Lock
}
func Record() bool {
	return d.Record
}
func Validate() bool {
	return d.Validate
}
