package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
)

// hostFlag parses --host into an override. It returns nil when the flag
// was not given.
func hostFlag(cmd *cobra.Command, value string) (*config.Host, error) {
	if !cmd.Flags().Changed("host") {
		return nil, nil
	}
	h, err := config.ParseHost(value)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// intFlag returns &value when the named flag was given.
func intFlag(cmd *cobra.Command, name string, value int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// boolFlag returns &value when the named flag was given.
func boolFlag(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// stringFlag returns &value when the named flag was given.
func stringFlag(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
