package cmd

import (
	"fmt"

	"github.com/conneroisu/unify/internal/build"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the build cache",
		Long: `The build cache stores a SHA-256 digest per source file so unchanged
files are skipped. It is an optimization only; deleting it forces a full
rebuild and never breaks one.`,
	}

	open := func(cmd *cobra.Command) (*build.HashCache, error) {
		if err := a.setup(cmd); err != nil {
			return nil, err
		}
		cache := a.newBuilder(prometheus.NewRegistry()).Cache()
		cache.Load()
		return cache, nil
	}

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache statistics",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				cache, err := open(cmd)
				if err != nil {
					return err
				}
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cache.Stats())
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Drop entries for vanished files and recompute malformed digests",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				cache, err := open(cmd)
				if err != nil {
					return err
				}
				report := cache.Repair()
				if err := cache.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d, recomputed %d\n", len(report.Removed), len(report.Recomputed))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget every digest so the next build rebuilds everything",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				cache, err := open(cmd)
				if err != nil {
					return err
				}
				cache.Clear()
				if err := cache.Save(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			},
		},
	)
	return cacheCmd
}
