package templates

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"text/template"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

// ConfigFile is the configuration file written into every new project.
const ConfigFile = "devpack.json"

// Config contains template configuration.
type Config struct {
	// ProjectName is the name of the project.
	ProjectName string

	// Description is a short project description.
	Description string
}

// Template represents a project template.
type Template struct {
	// Name is the template name.
	Name string

	// Description describes the template.
	Description string

	// Files is a map of relative paths to file contents.
	Files map[string]string
}

// DefaultTemplate is used when no template is named.
const DefaultTemplate = "react"

// Available templates.
var templates = map[string]*Template{
	"react":   reactTemplate(),
	"minimal": minimalTemplate(),
}

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidName reports whether name can be used as a project name.
func ValidName(name string) bool {
	return len(name) <= 214 && validName.MatchString(name)
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("E501").
			WithDetail(fmt.Sprintf("Template %q not found.", name)).
			WithSuggestion(fmt.Sprintf("Available templates: %v", List()))
	}
	return tmpl, nil
}

// List returns all available template names in sorted order.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns the template's file paths in sorted order, including the
// generated configuration file.
func (t *Template) Paths() []string {
	paths := make([]string, 0, len(t.Files)+1)
	for p := range t.Files {
		paths = append(paths, p)
	}
	paths = append(paths, ConfigFile)
	sort.Strings(paths)
	return paths
}

// Create generates a project from the template. dir must not exist yet.
func (t *Template) Create(dir string, cfg Config) error {
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		return errors.New("E500").
			WithDetail(fmt.Sprintf("Directory %q already exists.", dir)).
			WithSuggestion("Choose a different name or remove the existing directory")
	}

	for relPath, content := range t.Files {
		tmpl, err := template.New(relPath).Delims("[[", "]]").Parse(content)
		if err != nil {
			return errors.Newf(errors.CategoryCLI, "invalid template %s: %v", relPath, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return errors.Newf(errors.CategoryCLI, "template execute error %s: %v", relPath, err)
		}

		if err := writeFile(filepath.Join(dir, filepath.FromSlash(relPath)), buf.Bytes()); err != nil {
			return err
		}
	}

	return writeFile(filepath.Join(dir, ConfigFile), config.Default().Canonical())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

const favicon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32">
  <rect width="32" height="32" rx="6" fill="#0f172a"/>
  <path d="M9 8h7a8 8 0 0 1 0 16H9z" fill="none" stroke="#38bdf8" stroke-width="3"/>
</svg>
`

// reactTemplate returns the React single-page app template.
func reactTemplate() *Template {
	return &Template{
		Name:        "react",
		Description: "React single-page app with an /api proxy",
		Files: map[string]string{
			"index.html": `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <link rel="icon" type="image/svg+xml" href="/favicon.svg" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>[[.ProjectName]]</title>
  </head>
  <body>
    <div id="root"></div>
    <script type="module" src="/src/main.jsx"></script>
  </body>
</html>
`,
			"src/main.jsx": `import { StrictMode } from 'react'
import { createRoot } from 'react-dom/client'
import './index.css'
import App from './App.jsx'

createRoot(document.getElementById('root')).render(
  <StrictMode>
    <App />
  </StrictMode>,
)
`,
			"src/App.jsx": `import { useEffect, useState } from 'react'

export default function App() {
  const [count, setCount] = useState(0)
  const [status, setStatus] = useState('checking')

  useEffect(() => {
    fetch('/api/health')
      .then((res) => setStatus(res.ok ? 'up' : 'down (' + res.status + ')'))
      .catch(() => setStatus('unreachable'))
  }, [])

  return (
    <main>
      <h1>[[.ProjectName]]</h1>
      [[- if .Description]]
      <p>[[.Description]]</p>
      [[- end]]
      <button onClick={() => setCount((c) => c + 1)}>count is {count}</button>
      <p className="api">API: {status}</p>
      <p className="hint">
        Edit <code>src/App.jsx</code> and save to reload.
      </p>
    </main>
  )
}
`,
			"src/index.css": `:root {
  font-family: system-ui, -apple-system, sans-serif;
  color: #0f172a;
  background: #f8fafc;
}

body {
  margin: 0;
  display: flex;
  min-height: 100vh;
  place-items: center;
  justify-content: center;
}

button {
  border: 1px solid #cbd5e1;
  border-radius: 8px;
  padding: 0.6em 1.2em;
  font-size: 1em;
  background: #fff;
  cursor: pointer;
}

.hint {
  color: #64748b;
}
`,
			"public/favicon.svg": favicon,
			"package.json": `{
  "name": "[[.ProjectName]]",
  "private": true,
  "version": "0.0.0",
  "type": "module",
  "scripts": {
    "dev": "devpack dev",
    "build": "devpack build",
    "preview": "devpack preview"
  },
  "dependencies": {
    "react": "^19.0.0",
    "react-dom": "^19.0.0"
  }
}
`,
			".gitignore": `node_modules
dist
*.log
`,
		},
	}
}

// minimalTemplate returns the minimal template.
func minimalTemplate() *Template {
	return &Template{
		Name:        "minimal",
		Description: "A single page with one script",
		Files: map[string]string{
			"index.html": `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>[[.ProjectName]]</title>
  </head>
  <body>
    <div id="app"></div>
    <script type="module" src="/src/main.js"></script>
  </body>
</html>
`,
			"src/main.js": `document.getElementById('app').textContent = 'Hello from [[.ProjectName]]'
`,
		},
	}
}
