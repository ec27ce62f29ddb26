package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/unify/internal/build"
	"github.com/conneroisu/unify/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Build, then rebuild incrementally on change",
		Long: `Run an initial build, then watch the source directory. Changes are
debounced into batches; each batch rebuilds only the pages that depend on
the changed files and removes the output of deleted ones.

Examples:
  unify watch                      # Watch src/
  UNIFY_WATCH_DEBOUNCE=250ms unify watch`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			builder := a.newBuilder(prometheus.NewRegistry())
			fw, err := a.startWatching(ctx, cmd, builder)
			if err != nil {
				return err
			}
			defer fw.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", a.cfg.Build.Source)
			<-ctx.Done()
			return nil
		},
	}
}

// startWatching runs the initial build and hands every debounced batch to
// the builder.
func (a *app) startWatching(ctx context.Context, cmd *cobra.Command, builder *build.Builder) (*watcher.FileWatcher, error) {
	result, err := builder.InitialBuild(ctx)
	if err != nil {
		return nil, err
	}
	printBuildResult(cmd.OutOrStdout(), result)
	if err := buildFailure(result.Errors); err != nil {
		a.logger.Warn(ctx, err, "initial build had failures")
	}

	fw, err := watcher.NewFileWatcher(a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return nil, err
	}

	source := a.cfg.Build.Source
	skipOutput := watcher.ExcludeDirFilter(a.cfg.Build.Output)
	fw.AddFilter(watcher.RelativeFilter(source, watcher.NoHiddenFilter))
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(skipOutput)

	fw.OnBatch(func(ctx context.Context, batch watcher.Batch) error {
		res, err := builder.ProcessBatch(ctx, batch.Events)
		if err != nil {
			return err
		}
		a.logger.Info(ctx, "batch built",
			"batch_id", batch.ID,
			"events", len(batch.Events),
			"rebuilt", res.RebuiltFiles,
			"copied", res.CopiedAssets,
			"removed", res.RemovedOutputs,
			"errors", len(res.Errors))
		return nil
	})

	if err := fw.AddRecursive(source, skipOutput); err != nil {
		fw.Stop()
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}
