package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "DESTINY_"

// Config holds the server settings, read from DESTINY_* environment variables.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	// MaxComplexity caps the combinations a distribution request may need.
	MaxComplexity int64 `env:"MAX_COMPLEXITY" envDefault:"10000000"`
	// MaxDice caps the dice thrown by a single roll, in rooms and the API.
	MaxDice      int64         `env:"MAX_DICE" envDefault:"10000"`
	DefaultDice  string        `env:"DEFAULT_DICE" envDefault:"1d20"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"5s"`
	Workers      int           `env:"WORKERS" envDefault:"0"`
	SkipFailures bool          `env:"SKIP_FAILURES" envDefault:"false"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{Prefix: EnvPrefix})
}

// DefaultConfig returns Config with every field at its default.
func DefaultConfig() Config {
	cfg, err := parseConfig(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})
	if err != nil {
		// the defaults are constants; this only fails if a tag is wrong
		panic(err)
	}
	return cfg
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
