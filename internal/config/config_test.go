package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func noEnv(string) string { return "" }

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "src"), cfg.Build.Source)
	assert.Equal(t, filepath.Join(cwd, "dist"), cfg.Build.Output)
	assert.Equal(t, filepath.Join(cwd, ".unify-cache", "hashes.json"), cfg.Build.CacheFile)
	assert.Equal(t, "unify-", cfg.Build.AreaPrefix)
	assert.Equal(t, 10, cfg.Build.MaxDepth)
	assert.False(t, cfg.Build.PrettyURLs)
	assert.False(t, cfg.Build.FailOnSecurity)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Server.LiveReload)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".unify.yml"), []byte(`
build:
  source: site
  output: public
  pretty_urls: true
  area_prefix: x-
  ignore:
    - "drafts/**"
watch:
  debounce: 250ms
server:
  port: 8080
  live_reload: false
`), 0o644))

	v := viper.New()
	used, err := Configure(v, "", noEnv)
	require.NoError(t, err)
	assert.Equal(t, ".unify.yml", filepath.Base(used))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "site", filepath.Base(cfg.Build.Source))
	assert.Equal(t, "public", filepath.Base(cfg.Build.Output))
	assert.True(t, cfg.Build.PrettyURLs)
	assert.Equal(t, "x-", cfg.Build.AreaPrefix)
	assert.Equal(t, []string{"drafts/**"}, cfg.Build.Ignore)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.LiveReload)
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestConfigureMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	used, err := Configure(viper.New(), "", noEnv)
	require.NoError(t, err)
	assert.Empty(t, used)
}

func TestConfigureExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	custom := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("build:\n  minify: true\n"), 0o644))

	t.Run("from environment", func(t *testing.T) {
		v := viper.New()
		used, err := Configure(v, "", func(key string) string {
			if key == ConfigFileEnv {
				return custom
			}
			return ""
		})
		require.NoError(t, err)
		assert.Equal(t, custom, used)

		cfg, err := LoadFrom(v)
		require.NoError(t, err)
		assert.True(t, cfg.Build.Minify)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Configure(viper.New(), filepath.Join(dir, "nope.yml"), noEnv)
		require.Error(t, err)
		assert.Equal(t, uerrors.ExitCodeUsageError, uerrors.ExitCode(err))
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UNIFY_BUILD_MINIFY", "true")
	t.Setenv("UNIFY_SERVER_PORT", "4321")
	t.Setenv("UNIFY_WATCH_DEBOUNCE", "50ms")

	v := viper.New()
	_, err := Configure(v, "", noEnv)
	require.NoError(t, err)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.True(t, cfg.Build.Minify)
	assert.Equal(t, 4321, cfg.Server.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("UNIFY_TEST_DOTENV=loaded\n"), 0o644))
	t.Setenv("UNIFY_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("UNIFY_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("UNIFY_TEST_DOTENV"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"traversal in source", "build.source", "../outside"},
		{"traversal in output", "build.output", "a/../../b"},
		{"same source and output", "build.output", "src"},
		{"port too large", "server.port", 70000},
		{"negative port", "server.port", -1},
		{"zero debounce", "watch.debounce", "0s"},
		{"whitespace prefix", "build.area_prefix", "my prefix-"},
		{"empty prefix", "build.area_prefix", ""},
		{"max depth zero", "build.max_depth", 0},
		{"bad glob", "build.ignore", []string{"[abc"}},
		{"bad host", "server.host", "evil;rm"},
		{"bad log format", "logging.format", "xml"},
		{"undecodable port", "server.port", "invalid_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			v := viper.New()
			v.Set(tt.key, tt.value)

			cfg, err := LoadFrom(v)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Equal(t, uerrors.ExitCodeUsageError, uerrors.ExitCode(err))
		})
	}
}

func TestValidateConfigWithDetails(t *testing.T) {
	cfg := &Config{
		Build: BuildConfig{
			Source:     "does-not-exist-anywhere",
			Output:     "dist",
			CacheFile:  "cache.json",
			AreaPrefix: "unify-",
			MaxDepth:   10,
		},
		Watch:   WatchConfig{Debounce: time.Millisecond},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 80},
		Logging: LoggingConfig{Level: "loud", Format: "json"},
	}

	result := ValidateConfigWithDetails(cfg)
	assert.True(t, result.Valid)
	assert.False(t, result.HasErrors())
	require.True(t, result.HasWarnings())

	fields := make([]string, len(result.Warnings))
	for i, w := range result.Warnings {
		fields[i] = w.Field
	}
	assert.ElementsMatch(t, []string{"build.source", "server.port", "logging.level"}, fields)
	assert.Contains(t, result.String(), "Validation warnings")

	cfg.Build.MaxDepth = 0
	result = ValidateConfigWithDetails(cfg)
	assert.False(t, result.Valid)
	assert.Contains(t, result.String(), "build.max_depth")
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{"src", true},
		{"./site/src", true},
		{"/abs/path", true},
		{"a/../b", true},
		{"..", false},
		{"../x", false},
		{"a/../../x", false},
		{"", false},
		{"bad\x00path", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfigYAML(t *testing.T) {
	cfg := &Config{
		Build: BuildConfig{Source: "/s", Output: "/o", AreaPrefix: "unify-", MaxDepth: 10},
		Watch: WatchConfig{Debounce: 100 * time.Millisecond},
	}

	data, err := cfg.YAML()
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "/s", decoded["build"]["source"])
	assert.Equal(t, "unify-", decoded["build"]["area_prefix"])
	assert.Equal(t, "100ms", decoded["watch"]["debounce"])
}
