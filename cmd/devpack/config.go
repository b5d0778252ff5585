package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

func configCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after merging the defaults, the config file
and DEVPACK_* environment variables.

Examples:
  devpack config
  devpack config --format=yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.Overrides{})
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "json":
				data = cfg.Canonical()
			case "yaml":
				data, err = cfg.CanonicalYAML()
				if err != nil {
					return err
				}
			default:
				return errors.Newf(errors.CategoryCLI, "unknown format %q", format).
					WithSuggestion("Use --format=json or --format=yaml")
			}

			if file := cfg.File(); file != "" {
				opts.logger.Debug("config file", "path", file)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml)")

	return cmd
}
