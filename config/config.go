package config

import (
	"os"
	"time"
)

type Config struct {
	DBPath        string
	ContextTTL    time.Duration
	SweepInterval time.Duration
}

func Load() Config {
	return Config{
		DBPath:        envString("PROOFBIND_DB", "proofbind.db"),
		ContextTTL:    envDuration("PROOFBIND_CONTEXT_TTL", 5*time.Minute),
		SweepInterval: envDuration("PROOFBIND_SWEEP_INTERVAL", time.Minute),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
