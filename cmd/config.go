package cmd

import (
	"fmt"

	"github.com/conneroisu/unify/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate the effective configuration",
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration as YAML",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.setup(cmd); err != nil {
					return err
				}
				data, err := a.cfg.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration and list warnings",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.setup(cmd); err != nil {
					return err
				}
				result := config.ValidateConfigWithDetails(a.cfg)
				if !result.HasWarnings() {
					fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), result.String())
				return nil
			},
		},
	)
	return configCmd
}
