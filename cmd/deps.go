package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type depsReport struct {
	Pages  map[string][]string `yaml:"pages"`
	Cycles [][]string          `yaml:"cycles,omitempty"`
}

type fileReport struct {
	File         string   `yaml:"file"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Dependents   []string `yaml:"dependents"`
}

func newDepsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deps [file]",
		Short: "Print the dependency graph as YAML",
		Long: `Scan the source directory and print which layouts, components and
assets every page depends on, plus any reference cycles. With a file
argument, print the pages that depend on that file instead.

Examples:
  unify deps                       # Whole graph
  unify deps _includes/layout.html # Pages using one layout`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			builder := a.newBuilder(prometheus.NewRegistry())
			if err := builder.ScanGraph(commandContext(cmd)); err != nil {
				return err
			}

			source := a.cfg.Build.Source
			rel := func(paths []string) []string {
				out := make([]string, len(paths))
				for i, p := range paths {
					out[i] = relTo(source, p)
				}
				return out
			}
			sorted := func(paths []string) []string {
				out := rel(paths)
				sort.Strings(out)
				return out
			}

			tracker := builder.Tracker()
			var report interface{}
			if len(args) == 1 {
				file := sourceArg(source, args[0])
				report = fileReport{
					File:         relTo(source, file),
					Dependencies: sorted(tracker.Dependencies(file)),
					Dependents:   sorted(tracker.GetDependentPages(file)),
				}
			} else {
				graph := depsReport{Pages: make(map[string][]string)}
				for page, deps := range tracker.Graph() {
					graph.Pages[relTo(source, page)] = sorted(deps)
				}
				for _, cycle := range tracker.DetectCycles() {
					graph.Cycles = append(graph.Cycles, rel(cycle))
				}
				report = graph
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// sourceArg resolves a file argument against the working directory, then
// against the source directory.
func sourceArg(source, arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	if abs, err := filepath.Abs(arg); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return filepath.Join(source, arg)
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
