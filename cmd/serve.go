package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/unify/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Watch and serve the output with live reload",
		Long: `Build, watch the source directory and serve the output directory over
HTTP. Browsers viewing an HTML page reload after every batch that changed
output. Build metrics are exposed at /metrics.

Examples:
  unify serve                      # http://localhost:3000
  unify serve --port 8080 --host 0.0.0.0
  unify serve --live-reload=false`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			builder := a.newBuilder(reg)
			srv := server.New(server.Options{
				Host:       a.cfg.Server.Host,
				Port:       a.cfg.Server.Port,
				OutputDir:  a.cfg.Build.Output,
				LiveReload: a.cfg.Server.LiveReload,
				Gatherer:   reg,
			}, a.fs, builder, a.logger)

			fw, err := a.startWatching(ctx, cmd, builder)
			if err != nil {
				return err
			}
			defer fw.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", a.cfg.Build.Output, server.Options{
				Host: a.cfg.Server.Host,
				Port: a.cfg.Server.Port,
			}.Addr())
			return srv.Start(ctx)
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 3000, "port to serve on")
	flags.String("host", "localhost", "host to bind to")
	flags.Bool("live-reload", true, "inject the live-reload client into HTML pages")
	bindFlags(a.v, flags, map[string]string{
		"server.port":        "port",
		"server.host":        "host",
		"server.live_reload": "live-reload",
	})
	return cmd
}
