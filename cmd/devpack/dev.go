package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/dev"
	"github.com/vango-dev/devpack/internal/listen"
	"github.com/vango-dev/devpack/internal/metrics"
)

func devCmd(opts *globalOptions) *cobra.Command {
	var (
		host       string
		port       int
		strictPort bool
		open       bool
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Start the development server",
		Long: `Start the development server with live reload.

The dev server bundles index.html and its scripts in memory, watches the
project for changes, rebuilds, and refreshes connected browsers.

Features:
  • Live reload, with CSS-only reloads for style changes
  • Error overlay in the browser
  • /api proxied to the backend on localhost:8080
  • Prometheus metrics at ` + dev.MetricsPath + `

Examples:
  devpack dev
  devpack dev --port=3000 --strict-port=false
  devpack dev --host=127.0.0.1 --open`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hostFlag(cmd, host)
			if err != nil {
				return err
			}
			cfg, err := opts.load(config.Overrides{
				Host:       h,
				Port:       intFlag(cmd, "port", port),
				StrictPort: boolFlag(cmd, "strict-port", strictPort),
				Open:       boolFlag(cmd, "open", open),
			})
			if err != nil {
				return err
			}
			return runDev(cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind: true (all interfaces), false (localhost) or an address")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().BoolVar(&strictPort, "strict-port", true, "Exit instead of trying the next port when the port is taken")
	cmd.Flags().BoolVarP(&open, "open", "o", false, "Open the browser on start")

	return cmd
}

func runDev(cmd *cobra.Command, opts *globalOptions, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	server, err := dev.NewServer(dev.ServerOptions{
		Config:  cfg,
		Logger:  opts.logger,
		Metrics: metrics.New(),
		OnReady: func(urls listen.URLs) {
			printURLs(out, "devpack dev", urls)
		},
		OnBuildComplete: func(result dev.BuildResult) {
			if result.Success {
				success(out, "Built in %s", result.Duration.Round(time.Millisecond))
				return
			}
			warn(out, "Build failed; serving the last good build")
		},
		OnReload: func(clients int) {
			success(out, "Reloaded %d browsers", clients)
		},
	})
	if err != nil {
		return err
	}

	err = server.Start(cmd.Context())
	fmt.Fprintln(out, "\n  Shutting down...")
	return err
}

// printURLs prints the addresses a server can be reached at.
func printURLs(w io.Writer, title string, urls listen.URLs) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n\n", boldStyle.Render(title))
	for _, u := range urls.Local {
		fmt.Fprintf(w, "  ➜  Local:   %s\n", urlStyle.Render(u))
	}
	for _, u := range urls.Network {
		fmt.Fprintf(w, "  ➜  Network: %s\n", urlStyle.Render(u))
	}
	if len(urls.Network) == 0 {
		fmt.Fprintf(w, "  ➜  Network: %s\n", dimStyle.Render("use --host to expose"))
	}
	fmt.Fprintln(w)
}
