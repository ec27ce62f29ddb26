// Package cmd provides the unify command-line interface.
//
// Configuration System:
//
//	Settings are resolved with this precedence, highest first:
//	1. Command-line flags (--source, --output, --pretty-urls, ...)
//	2. UNIFY_<SECTION>_<OPTION> environment variables (UNIFY_SERVER_PORT)
//	3. The config file: --config, else UNIFY_CONFIG_FILE, else .unify.yml
//	4. Built-in defaults
//
// A .env file in the working directory is loaded first and never overrides
// variables already set in the environment.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/unify/internal/adapters"
	"github.com/conneroisu/unify/internal/build"
	"github.com/conneroisu/unify/internal/config"
	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the state shared by one invocation of the command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
	getenv  func(string) string
	fs      interfaces.FileSystem

	cfg    *config.Config
	logger logging.Logger
}

// Execute runs the command line and returns the error to classify into an
// exit code.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{
		v:      viper.New(),
		getenv: os.Getenv,
		fs:     adapters.NewOSFileSystem(),
	}

	rootCmd := &cobra.Command{
		Use:   "unify",
		Short: "Compose static HTML sites from layouts and components",
		Long: `unify builds static sites out of plain HTML. Pages name a layout with
data-unify, fill its unify-* areas by class, and pull in components whose
landmarks and areas merge into the page.

Quick Start:
  unify build                 Build src/ into dist/
  unify watch                 Rebuild incrementally on change
  unify serve                 Watch and serve with live reload
  unify deps                  Print the dependency graph`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .unify.yml, can also use UNIFY_CONFIG_FILE env var)")
	flags.StringP("source", "s", "src", "source directory")
	flags.StringP("output", "o", "dist", "output directory")
	flags.Bool("pretty-urls", false, "write a/b.html as a/b/index.html and rewrite links")
	flags.Bool("minify", false, "minify HTML output")
	flags.Bool("fail-on-security", false, "fail pages with critical security findings")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	bindFlags(a.v, flags, map[string]string{
		"build.source":           "source",
		"build.output":           "output",
		"build.pretty_urls":      "pretty-urls",
		"build.minify":           "minify",
		"build.fail_on_security": "fail-on-security",
		"logging.level":          "log-level",
		"logging.format":         "log-format",
	})

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(
		newBuildCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newDepsCmd(a),
		newCacheCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// setup loads .env, the config file and the environment, then builds the
// logger. Every command that touches the site calls it first.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	used, err := config.Configure(a.v, a.cfgFile, a.getenv)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Logging, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if used != "" {
		a.logger.Debug(ctx, "using config file", "path", used)
	}
	for _, w := range config.ValidateConfigWithDetails(cfg).Warnings {
		a.logger.Warn(ctx, nil, w.Message, "field", w.Field)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig, out io.Writer) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LevelFromString(cfg.Level),
		Format:    cfg.Format,
		Output:    out,
		Component: "unify",
	})
}

func (a *app) newBuilder(reg prometheus.Registerer) *build.Builder {
	b := a.cfg.Build
	return build.NewBuilder(a.fs, a.logger, build.Options{
		SourceRoot:     b.Source,
		OutputDir:      b.Output,
		CacheFile:      b.CacheFile,
		PrettyURLs:     b.PrettyURLs,
		Minify:         b.Minify,
		AreaPrefix:     b.AreaPrefix,
		MaxDepth:       b.MaxDepth,
		Ignore:         b.Ignore,
		FailOnSecurity: b.FailOnSecurity,
		Registerer:     reg,
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func usageError(err error) error {
	ue := uerrors.NewValidationError(uerrors.ErrCodeValidationFailed, err.Error())
	ue.Cause = err
	return ue
}
