package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/unify/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for unify: the version, git commit, build
time, Go version and target platform.

Examples:
  unify version                 # Detailed version
  unify version --short         # Version only
  unify version --format json   # Machine readable`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetBuildInfo())
			case "text":
				if short {
					fmt.Fprintln(out, version.GetShortVersion())
					return nil
				}
				fmt.Fprintln(out, version.GetDetailedVersion())
				return nil
			default:
				return usageError(fmt.Errorf("unsupported format: %s (supported: text, json)", format))
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "show the version only")
	return cmd
}
