// Package config loads unify settings with Viper from a YAML file,
// UNIFY_ environment variables, an optional .env file and command-line
// flags.
//
// Precedence, highest first: flags bound into viper, UNIFY_* environment
// variables, the config file (--config, UNIFY_CONFIG_FILE or .unify.yml),
// then the defaults registered by SetDefaults.
package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override, e.g. UNIFY_BUILD_MINIFY.
	EnvPrefix = "UNIFY"
	// ConfigFileEnv names a config file when --config is absent.
	ConfigFileEnv = "UNIFY_CONFIG_FILE"
	// DefaultConfigName is searched for in the working directory.
	DefaultConfigName = ".unify"
)

type Config struct {
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type BuildConfig struct {
	Source         string   `mapstructure:"source" yaml:"source"`
	Output         string   `mapstructure:"output" yaml:"output"`
	CacheFile      string   `mapstructure:"cache_file" yaml:"cache_file"`
	Clean          bool     `mapstructure:"clean" yaml:"clean"`
	PrettyURLs     bool     `mapstructure:"pretty_urls" yaml:"pretty_urls"`
	Minify         bool     `mapstructure:"minify" yaml:"minify"`
	AreaPrefix     string   `mapstructure:"area_prefix" yaml:"area_prefix"`
	MaxDepth       int      `mapstructure:"max_depth" yaml:"max_depth"`
	Ignore         []string `mapstructure:"ignore" yaml:"ignore"`
	FailOnSecurity bool     `mapstructure:"fail_on_security" yaml:"fail_on_security"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	LiveReload bool   `mapstructure:"live_reload" yaml:"live_reload"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("build.source", "src")
	v.SetDefault("build.output", "dist")
	v.SetDefault("build.cache_file", ".unify-cache/hashes.json")
	v.SetDefault("build.clean", false)
	v.SetDefault("build.pretty_urls", false)
	v.SetDefault("build.minify", false)
	v.SetDefault("build.area_prefix", "unify-")
	v.SetDefault("build.max_depth", 10)
	v.SetDefault("build.ignore", []string{})
	v.SetDefault("build.fail_on_security", false)

	v.SetDefault("watch.debounce", 100*time.Millisecond)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.live_reload", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Configure points v at its config file and enables UNIFY_ environment
// overrides. An explicit file that cannot be read is an error; a missing
// default .unify.yml is not. It returns the config file used, if any.
func Configure(v *viper.Viper, file string, getenv func(string) string) (string, error) {
	if file == "" && getenv != nil {
		file = getenv(ConfigFileEnv)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return "", nil
		}
		ce := uerrors.NewConfigError(uerrors.ErrCodeConfigInvalid, "read config file: "+err.Error())
		ce.Cause = err
		return "", ce
	}
	return v.ConfigFileUsed(), nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and existing variables are not overridden.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return uerrors.NewConfigError(uerrors.ErrCodeConfigInvalid, "load "+f+": "+err.Error())
		}
	}
	return nil
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates v, then resolves build paths to absolute
// paths.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		ce := uerrors.NewConfigError(uerrors.ErrCodeConfigInvalid, "decode configuration: "+err.Error())
		ce.Cause = err
		return nil, ce
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() error {
	for _, p := range []*string{&c.Build.Source, &c.Build.Output, &c.Build.CacheFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return uerrors.NewConfigError(uerrors.ErrCodeInvalidPath, "resolve "+*p+": "+err.Error())
		}
		*p = abs
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
