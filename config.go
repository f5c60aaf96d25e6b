package beacon

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the surface consumed at Init time. Collaborators (tracer
// provider, clock, logger) are injected via Options instead.
type Config struct {
	// AppName labels every span with the application it came from.
	AppName string `toml:"app_name"`
	// Endpoint is the OTLP HTTP endpoint the exporter package delivers to.
	Endpoint string `toml:"endpoint"`
	// Debug enables SDK diagnostic logging via slog.Default.
	Debug bool `toml:"debug"`
	// BufferPath is the SQLite file the exporter buffers undelivered spans
	// in. Empty disables disk buffering.
	BufferPath string `toml:"buffer_path"`
	// SessionLifetimeMinutes bounds how long one session id stays valid.
	// Zero means the default of four hours.
	SessionLifetimeMinutes int `toml:"session_lifetime_minutes"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		AppName: "beacon-app",
	}
}

// LoadConfig reads config: defaults -> TOML file -> env vars (env wins).
// A missing file is not an error; defaults apply. A file that exists but
// fails to parse is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "beacon.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Env overrides
	if v := os.Getenv("BEACON_APP_NAME"); v != "" {
		cfg.AppName = v
	}
	if v := os.Getenv("BEACON_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("BEACON_BUFFER_PATH"); v != "" {
		cfg.BufferPath = v
	}
	if os.Getenv("BEACON_DEBUG") == "true" || os.Getenv("BEACON_DEBUG") == "1" {
		cfg.Debug = true
	}

	return cfg, nil
}

func (c Config) sessionLifetime() time.Duration {
	if c.SessionLifetimeMinutes <= 0 {
		return DefaultSessionLifetime
	}
	return time.Duration(c.SessionLifetimeMinutes) * time.Minute
}
