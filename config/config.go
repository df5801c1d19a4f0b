// Package config loads LSNP peer configuration from the environment,
// per spec.md §6.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config holds the runtime-tunable knobs spec.md §6 lists.
type Config struct {
	Port            int
	TTL             time.Duration
	BroadcastAddr   string
	BroadcastPeriod time.Duration
	DMAckTimeout    time.Duration
	DMMaxAttempts   int
	AckWatcherTick  time.Duration
}

// Defaults returns spec.md's documented defaults.
func Defaults() Config {
	return Config{
		Port:            50999,
		TTL:             1 * time.Hour,
		BroadcastAddr:   "255.255.255.255",
		BroadcastPeriod: 30 * time.Second,
		DMAckTimeout:    2 * time.Second,
		DMMaxAttempts:   3,
		AckWatcherTick:  500 * time.Millisecond,
	}
}

// FromEnv overlays environment variables onto Defaults(). Unset variables
// keep their default; malformed ones return an error.
func FromEnv() (Config, error) {
	c := Defaults()

	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrap(err, "config: PORT")
		}
		c.Port = n
	}
	if v := os.Getenv("TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrap(err, "config: TTL")
		}
		c.TTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv("BROADCAST_ADDR"); v != "" {
		c.BroadcastAddr = v
	}
	if v := os.Getenv("BROADCAST_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrap(err, "config: BROADCAST_PERIOD")
		}
		c.BroadcastPeriod = time.Duration(n) * time.Second
	}
	if v := os.Getenv("DM_ACK_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrap(err, "config: DM_ACK_TIMEOUT")
		}
		c.DMAckTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("DM_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrap(err, "config: DM_MAX_ATTEMPTS")
		}
		c.DMMaxAttempts = n
	}

	return c, nil
}
