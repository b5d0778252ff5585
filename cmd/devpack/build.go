package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/build"
	"github.com/vango-dev/devpack/internal/config"
)

func buildCmd(opts *globalOptions) *cobra.Command {
	var (
		outDir    string
		sourcemap bool
		minify    string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build for production",
		Long: `Bundle the app for production deployment.

This command:
  • Bundles the scripts referenced by index.html
  • Minifies the output with esbuild (or terser)
  • Copies the public directory
  • Writes the rewritten index.html to the output directory

Examples:
  devpack build
  devpack build --out-dir=build
  devpack build --sourcemap --minify=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m *config.Minifier
			if cmd.Flags().Changed("minify") {
				parsed, err := config.ParseMinifier(minify)
				if err != nil {
					return err
				}
				m = &parsed
			}
			cfg, err := opts.load(config.Overrides{
				OutDir:    stringFlag(cmd, "out-dir", outDir),
				Sourcemap: boolFlag(cmd, "sourcemap", sourcemap),
				Minify:    m,
			})
			if err != nil {
				return err
			}
			return runBuild(cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "dist", "Output directory")
	cmd.Flags().BoolVar(&sourcemap, "sourcemap", false, "Generate source maps")
	cmd.Flags().StringVar(&minify, "minify", string(config.MinifyEsbuild), "Minifier (esbuild, terser, false)")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *globalOptions, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	info(out, "Building for production...")
	fmt.Fprintln(out)

	builder, err := build.New(cfg, build.Options{
		Logger: opts.logger,
		OnProgress: progressPrinter(out),
	})
	if err != nil {
		return err
	}

	result, err := builder.Build(cmd.Context())
	if err != nil {
		return err
	}

	printBuildResult(out, cfg, result)
	return nil
}

// progressPrinter prints build steps verbatim.
func progressPrinter(w io.Writer) func(step string) {
	return func(step string) {
		info(w, "%s", dimStyle.Render(step))
	}
}

// printBuildResult lists the written files with their raw and gzip sizes.
func printBuildResult(w io.Writer, cfg *config.Config, result *build.Result) {
	outDir := cfg.Build.OutDir
	if rel, err := filepath.Rel(cfg.RootPath(), result.OutDir); err == nil {
		outDir = filepath.ToSlash(rel)
	}

	width := 0
	for _, f := range result.Files {
		width = max(width, len(outDir)+1+len(f.Path))
	}

	fmt.Fprintln(w)
	for _, f := range result.Files {
		name := outDir + "/" + f.Path
		fmt.Fprintf(w, "  %s%*s  %9s %s\n",
			dimStyle.Render(outDir+"/")+boldStyle.Render(f.Path),
			width-len(name), "",
			formatBytes(f.Size),
			dimStyle.Render(fmt.Sprintf("│ gzip: %s", formatBytes(f.GzipSize))))
	}
	fmt.Fprintln(w)
	success(w, "Built %d files (%s) in %s",
		len(result.Files), formatBytes(result.TotalSize()), result.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)
}
