package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/listen"
	"github.com/vango-dev/devpack/internal/metrics"
	"github.com/vango-dev/devpack/internal/preview"
)

func previewCmd(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve the production build locally",
		Long: `Serve the output of 'devpack build' for a final check before deploying.

Examples:
  devpack build && devpack preview
  devpack preview --port=4173`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hostFlag(cmd, host)
			if err != nil {
				return err
			}
			cfg, err := opts.load(config.Overrides{
				PreviewHost: h,
				PreviewPort: intFlag(cmd, "port", port),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			server, err := preview.New(preview.Options{
				Config:  cfg,
				Logger:  opts.logger,
				Metrics: metrics.New(),
				OnReady: func(urls listen.URLs) {
					printURLs(out, "devpack preview", urls)
				},
			})
			if err != nil {
				return err
			}
			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "\n  Shutting down...")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind: true (all interfaces), false (localhost) or an address")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")

	return cmd
}
