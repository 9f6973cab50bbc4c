package server

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	must.EqOp(t, ":8080", cfg.Addr)
	must.EqOp(t, int64(10_000_000), cfg.MaxComplexity)
	must.EqOp(t, int64(10_000), cfg.MaxDice)
	must.EqOp(t, "1d20", cfg.DefaultDice)
	must.EqOp(t, 5*time.Second, cfg.PingInterval)
	must.False(t, cfg.SkipFailures)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DESTINY_ADDR", ":9999")
	t.Setenv("DESTINY_MAX_COMPLEXITY", "500")
	t.Setenv("DESTINY_PING_INTERVAL", "250ms")
	t.Setenv("DESTINY_MAX_DICE", "12")
	t.Setenv("DESTINY_SKIP_FAILURES", "true")
	cfg, err := LoadConfig()
	must.NoError(t, err)
	must.EqOp(t, ":9999", cfg.Addr)
	must.EqOp(t, int64(500), cfg.MaxComplexity)
	must.EqOp(t, 250*time.Millisecond, cfg.PingInterval)
	must.EqOp(t, int64(12), cfg.MaxDice)
	must.True(t, cfg.SkipFailures)

	t.Setenv("DESTINY_WORKERS", "many")
	_, err = LoadConfig()
	must.Error(t, err)
}
