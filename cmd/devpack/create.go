package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/templates"
)

func createCmd(opts *globalOptions) *cobra.Command {
	var (
		template    string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new project",
		Long: `Create a new project directory from a template.

Templates:
  react     React single-page app with an /api proxy (default)
  minimal   A single page with one script

Examples:
  devpack create my-app
  devpack create my-app --template=minimal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, opts, args[0], template, description)
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", templates.DefaultTemplate,
		"Project template ("+strings.Join(templates.List(), ", ")+")")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")

	return cmd
}

func runCreate(cmd *cobra.Command, opts *globalOptions, name, templateName, description string) error {
	out := cmd.OutOrStdout()

	if !templates.ValidName(name) {
		return errors.Newf(errors.CategoryCLI, "invalid project name %q", name).
			WithSuggestion("Use lowercase letters, numbers, dots, dashes and underscores")
	}

	tmpl, err := templates.Get(templateName)
	if err != nil {
		return err
	}

	projectDir, err := filepath.Abs(filepath.Join(opts.root, name))
	if err != nil {
		return err
	}

	info(out, "Creating %s from the '%s' template...", name, tmpl.Name)
	if err := tmpl.Create(projectDir, templates.Config{ProjectName: name, Description: description}); err != nil {
		return err
	}
	opts.logger.Debug("project created", "dir", projectDir, "template", tmpl.Name)

	fmt.Fprintln(out)
	success(out, "Created %s/", name)
	for _, p := range tmpl.Paths() {
		fmt.Fprintf(out, "    %s\n", dimStyle.Render(p))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  To get started:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "    cd %s\n", name)
	if tmpl.Name == "react" {
		fmt.Fprintln(out, "    npm install")
	}
	fmt.Fprintln(out, "    devpack dev")
	fmt.Fprintln(out)

	return nil
}
