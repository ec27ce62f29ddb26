package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/conneroisu/unify/internal/build"
	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newBuildCmd(a *app) *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Build the site once",
		Long: `Build every page and copy referenced assets from the source directory
into the output directory. Files whose content hash matches the build cache
are skipped; when nothing changed and the output exists, nothing is written.

Examples:
  unify build                      # Build src/ into dist/
  unify build --clean              # Ignore the build cache
  unify build -s site -o public    # Custom directories
  unify build --pretty-urls        # about.html -> about/index.html`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("clean") {
				a.cfg.Build.Clean = clean
			}

			builder := a.newBuilder(prometheus.NewRegistry())
			if a.cfg.Build.Clean {
				builder.Cache().Clear()
			}

			result, err := builder.InitialBuild(commandContext(cmd))
			if err != nil {
				return err
			}
			printBuildResult(cmd.OutOrStdout(), result)
			return buildFailure(result.Errors)
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "ignore the build cache and rebuild everything")
	return cmd
}

func printBuildResult(w io.Writer, result *build.BuildResult) {
	if result.ShortCircuited {
		fmt.Fprintf(w, "Up to date: %d files unchanged (%s)\n", result.Skipped, result.Duration.Round(1e6))
		return
	}
	fmt.Fprintf(w, "Built %d pages, copied %d assets in %s", result.Pages, result.Assets, result.Duration.Round(1e6))
	if result.Failed > 0 {
		fmt.Fprintf(w, " (%d failed)", result.Failed)
	}
	fmt.Fprintln(w)
	for _, fe := range result.FileErrors {
		fmt.Fprintf(w, "  %s [%s]\n", fe.File, fe.Severity)
	}
}

// buildFailure returns nil when errs is empty. A security error wins so
// the process exits with the security code.
func buildFailure(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		if uerrors.IsSecurityError(err) {
			return err
		}
	}
	return uerrors.NewBuildError(uerrors.ErrCodeBuildFailed,
		fmt.Sprintf("%d file(s) failed to build", len(errs)), errors.Join(errs...))
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
