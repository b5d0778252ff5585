package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	root       string
	configFile string
	logLevel   string
	logFormat  string
	logFile    string

	logger    *slog.Logger
	logCloser io.Closer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	cancel()
	if err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "devpack",
		Short: "Dev server and production bundler for single-page apps",
		Long: `devpack serves, bundles and previews React single-page apps.

  • Development server on port 5173 with live reload
  • /api requests proxied to a backend on localhost:8080
  • Production builds bundled and minified by esbuild
  • Local preview of the production build`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, closer, err := logging.New(logging.Options{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				File:   opts.logFile,
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			opts.logCloser = closer
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				opts.logCloser.Close()
			}
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", ".", "Project directory")
	flags.StringVarP(&opts.configFile, "config", "c", "", "Config file (default: devpack.json, devpack.yaml or devpack.yml in --root)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file, rotated by size")

	rootCmd.AddCommand(
		createCmd(opts),
		configCmd(opts),
		devCmd(opts),
		buildCmd(opts),
		previewCmd(opts),
		publishCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

// load reads the project configuration with the given flag overrides.
func (o *globalOptions) load(overrides config.Overrides) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		Dir:       o.root,
		File:      o.configFile,
		Overrides: overrides,
	})
}

var (
	successMark = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✓")
	warnMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render("⚠")
	dimStyle    = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", successMark, fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark, fmt.Sprintf(format, args...))
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
