// Package config loads the server's runtime configuration from environment
// variables (with nested keys expressed via a `__` separator) and sane
// defaults, using spf13/viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of options from Section 6.3.
type Config struct {
	// Echo turns on verbose database statement logging.
	Echo bool
	// Debug turns on verbose process logging and mounts debug-only routes
	// such as GET /status.
	Debug bool

	Purge PurgeConfig
}

// PurgeConfig controls the background purger's schedule and retention
// windows.
type PurgeConfig struct {
	Enabled    bool
	Interval   time.Duration
	VaultAge   time.Duration
	PendingAge time.Duration
}

// Load reads configuration from the environment (PURGE__INTERVAL,
// PURGE__VAULT_AGE, etc., binding to nested purge.interval / purge.vault_age
// keys) layered over defaults matching Section 6.3's table.
func Load() (Config, error) {
	v := viper.New()
	// A nested key like "purge.interval" becomes the env var PURGE__INTERVAL:
	// viper upper-cases the key, then this replacer turns "." into "__".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	v.SetDefault("echo", false)
	v.SetDefault("debug", false)
	v.SetDefault("purge.enabled", true)
	v.SetDefault("purge.interval", 1)    // hours
	v.SetDefault("purge.vault_age", 30)  // days
	v.SetDefault("purge.pending_age", 7) // days

	for _, key := range []string{
		"echo", "debug", "purge.enabled", "purge.interval", "purge.vault_age", "purge.pending_age",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	return Config{
		Echo:  v.GetBool("echo"),
		Debug: v.GetBool("debug"),
		Purge: PurgeConfig{
			Enabled:    v.GetBool("purge.enabled"),
			Interval:   time.Duration(v.GetInt("purge.interval")) * time.Hour,
			VaultAge:   time.Duration(v.GetInt("purge.vault_age")) * 24 * time.Hour,
			PendingAge: time.Duration(v.GetInt("purge.pending_age")) * 24 * time.Hour,
		},
	}, nil
}
