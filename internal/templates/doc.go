// Package templates provides project scaffolding templates.
//
// # Available Templates
//
//   - react: React single-page app with an /api proxy (default)
//   - minimal: A single page with one script
//
// # Usage
//
//	tmpl, err := templates.Get("react")
//	if err != nil {
//	    return err
//	}
//	if err := tmpl.Create(projectDir, templates.Config{ProjectName: "my-app"}); err != nil {
//	    return err
//	}
//
// # Template Variables
//
// Files are rendered with text/template using [[ and ]] as delimiters so
// that JSX braces pass through untouched:
//
//	[[.ProjectName]]     - Name of the project
//	[[.Description]]     - Project description
//
// Every project also receives a devpack.json holding the default
// configuration.
package templates
