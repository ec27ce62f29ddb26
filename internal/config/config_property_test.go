//go:build property
// +build property

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func validConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Source:     "src",
			Output:     "dist",
			CacheFile:  ".unify-cache/hashes.json",
			AreaPrefix: "unify-",
			MaxDepth:   10,
		},
		Watch:   WatchConfig{Debounce: 100 * time.Millisecond},
		Server:  ServerConfig{Host: "localhost", Port: 3000},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ports in range validate", prop.ForAll(
		func(port int) bool {
			cfg := validConfig()
			cfg.Server.Port = port
			return validateConfig(cfg) == nil
		},
		gen.IntRange(0, 65535),
	))

	properties.Property("ports out of range are rejected", prop.ForAll(
		func(port int, negative bool) bool {
			cfg := validConfig()
			if negative {
				port = -port - 1
			} else {
				port += 65536
			}
			cfg.Server.Port = port
			return validateConfig(cfg) != nil
		},
		gen.IntRange(0, 1<<20),
		gen.Bool(),
	))

	properties.Property("climbing out of the project is rejected", prop.ForAll(
		func(segments []string) bool {
			rel := filepath.Join(append([]string{".."}, segments...)...)
			cfg := validConfig()
			cfg.Build.Source = rel
			return validateConfig(cfg) != nil
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("prefixes with whitespace are rejected", prop.ForAll(
		func(a, b string, ws int) bool {
			cfg := validConfig()
			cfg.Build.AreaPrefix = a + string(" \t\n"[ws]) + b
			return validateConfig(cfg) != nil
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(0, 2),
	))

	properties.Property("identifier prefixes validate", prop.ForAll(
		func(prefix string) bool {
			cfg := validConfig()
			cfg.Build.AreaPrefix = strings.ToLower(prefix) + "-"
			return validateConfig(cfg) == nil
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
