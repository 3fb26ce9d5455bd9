package debug

import (
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestEnvToggles(t *testing.T) {
	t.Setenv("TONY_TXN_DEBUG_LOCK", "true")
	t.Setenv("TONY_TXN_DEBUG_TX", "false")
	var got debug
	if err := env.Parse(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Lock || got.Tx || got.Record || got.Validate {
		t.Errorf("got %+v", got)
	}
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("TONY_TXN_DEBUG_RECORD", "maybe")
	var got debug
	if err := env.Parse(&got); err == nil {
		t.Error("expected parse error")
	}
}
