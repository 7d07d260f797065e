package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

const envPrefix = "QUADPONG_"

type Config struct {
	Addr     string
	LogLevel string
	LogDev   bool

	Tuning      engine.Tuning
	CatalogPath string

	DatabaseURL string // empty disables match recording
	NATSURL     string // empty disables the event mirror

	MsgsPerSec float64
	MsgBurst   int
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, applying defaults for unset keys.
// Every malformed value is reported, not just the first.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	def := engine.DefaultTuning()

	cfg := Config{
		Addr:        r.str("ADDR", ":8080"),
		LogLevel:    r.str("LOG_LEVEL", "info"),
		LogDev:      r.boolean("LOG_DEV", false),
		CatalogPath: r.str("CATALOG_PATH", ""),
		DatabaseURL: r.str("DATABASE_URL", ""),
		NATSURL:     r.str("NATS_URL", ""),
		MsgsPerSec:  r.float("MSGS_PER_SEC", 20),
		MsgBurst:    r.integer("MSG_BURST", 40),
		Tuning: engine.Tuning{
			DefaultMaxPlayers:   r.integer("DEFAULT_MAX_PLAYERS", def.DefaultMaxPlayers),
			SpecialModeDuration: time.Duration(r.integer("SPECIAL_MODE_SECONDS", int(def.SpecialModeDuration/time.Second))) * time.Second,
			SettleDelay:         time.Duration(r.integer("SETTLE_MS", int(def.SettleDelay/time.Millisecond))) * time.Millisecond,
			StealAmount:         r.integer("STEAL_AMOUNT", def.StealAmount),
		},
	}

	err := r.err
	if n := cfg.Tuning.DefaultMaxPlayers; n < engine.MinPlayers || n > engine.MaxSlots {
		err = multierr.Append(err, fmt.Errorf("%sDEFAULT_MAX_PLAYERS: %d not in %d..%d", envPrefix, n, engine.MinPlayers, engine.MaxSlots))
	}
	if cfg.Tuning.SpecialModeDuration <= 0 {
		err = multierr.Append(err, fmt.Errorf("%sSPECIAL_MODE_SECONDS must be positive", envPrefix))
	}
	if cfg.Tuning.StealAmount <= 0 {
		err = multierr.Append(err, fmt.Errorf("%sSTEAL_AMOUNT must be positive", envPrefix))
	}
	if cfg.MsgsPerSec <= 0 || cfg.MsgBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("%sMSGS_PER_SEC and %sMSG_BURST must be positive", envPrefix, envPrefix))
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return b
}
