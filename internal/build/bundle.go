package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/plugin"
)

// Bundle is a complete build held in memory.
type Bundle struct {
	// HTML is the rewritten index.html.
	HTML []byte

	// Files maps output paths relative to the output directory, with
	// forward slashes, to their contents.
	Files map[string][]byte

	// Entries maps each source entry, relative to the project root, to its
	// outputs.
	Entries map[string]ManifestEntry

	// Warnings are bundler warnings, formatted for display.
	Warnings []string
}

// ManifestEntry lists the outputs of one source entry.
type ManifestEntry struct {
	File string   `json:"file"`
	CSS  []string `json:"css,omitempty"`
}

// Paths returns the output paths in sorted order.
func (b *Bundle) Paths() []string {
	paths := make([]string, 0, len(b.Files))
	for p := range b.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var assetLoaders = []string{
	".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".ico",
	".woff", ".woff2", ".ttf", ".eot",
}

// bundlerOptions returns the esbuild options for mode.
func (b *Builder) bundlerOptions(entries []string, mode plugin.Mode) (api.BuildOptions, error) {
	cfg := b.config
	target, ok := targets[strings.ToLower(cfg.Build.Target)]
	if !ok {
		return api.BuildOptions{}, errors.New("E300").
			WithDetail("Unsupported build.target " + cfg.Build.Target).
			WithSuggestion("Use one of es2015 ... es2022 or esnext")
	}

	assets := strings.Trim(filepath.ToSlash(cfg.Build.AssetsDir), "/")
	pattern := "[name]-[hash]"
	if assets != "" {
		pattern = assets + "/" + pattern
	}

	opts := api.BuildOptions{
		EntryPoints:   entries,
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		AbsWorkingDir: cfg.RootPath(),
		Outdir:        cfg.OutputPath(),
		EntryNames:    pattern,
		ChunkNames:    pattern,
		AssetNames:    pattern,
		PublicPath:    cfg.BasePath(),
		Format:        api.FormatESModule,
		Splitting:     true,
		Platform:      api.PlatformBrowser,
		Target:        target,
		LogLevel:      api.LogLevelSilent,
		Define:        b.defines(mode),
		Loader:        map[string]api.Loader{},
	}
	for _, ext := range assetLoaders {
		opts.Loader[ext] = api.LoaderFile
	}

	if mode == plugin.ModeDevelopment {
		opts.Sourcemap = api.SourceMapInline
	} else {
		if b.sourcemap() {
			opts.Sourcemap = api.SourceMapLinked
		} else {
			opts.Sourcemap = api.SourceMapNone
		}
		if b.minifier() == config.MinifyEsbuild {
			opts.MinifyWhitespace = true
			opts.MinifyIdentifiers = true
			opts.MinifySyntax = true
		}
	}

	if err := plugin.Apply(b.plugins, &opts, mode); err != nil {
		return api.BuildOptions{}, err
	}
	return opts, nil
}

// defines returns the compile-time constants exposed to client code:
// import.meta.env.MODE, DEV, PROD, BASE_URL, every variable carrying the
// configured prefix, and process.env.NODE_ENV. The tool's own override
// variables (config.OverrideVars) are never exposed.
func (b *Builder) defines(mode plugin.Mode) map[string]string {
	env := map[string]any{
		"MODE":     string(mode),
		"DEV":      mode == plugin.ModeDevelopment,
		"PROD":     mode == plugin.ModeProduction,
		"BASE_URL": b.config.BasePath(),
	}
	if prefix := b.config.EnvPrefix; prefix != "" {
		for _, kv := range b.environ() {
			key, value, ok := strings.Cut(kv, "=")
			if ok && strings.HasPrefix(key, prefix) && !config.IsOverrideVar(key) {
				env[key] = value
			}
		}
	}

	defines := map[string]string{
		"process.env.NODE_ENV": jsonString(string(mode)),
	}
	for key, value := range env {
		data, _ := json.Marshal(value)
		defines["import.meta.env."+key] = string(data)
	}
	all, _ := json.Marshal(env)
	defines["import.meta.env"] = string(all)
	return defines
}

func (b *Builder) environ() []string {
	if b.options.Environ != nil {
		return b.options.Environ()
	}
	return os.Environ()
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
		CSSBundle  string `json:"cssBundle"`
	} `json:"outputs"`
}

// assemble turns a bundler result into a Bundle.
func (b *Builder) assemble(result api.BuildResult, pg *page) (*Bundle, error) {
	if len(result.Errors) > 0 {
		return nil, bundlerError(result.Errors, b.config.RootPath())
	}

	root := b.config.RootPath()
	outDir := b.config.OutputPath()

	bundle := &Bundle{
		Files:   make(map[string][]byte, len(result.OutputFiles)),
		Entries: map[string]ManifestEntry{},
	}
	for _, w := range result.Warnings {
		bundle.Warnings = append(bundle.Warnings, formatMessage(w))
	}
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			return nil, errors.New("E300").Wrap(err)
		}
		bundle.Files[filepath.ToSlash(rel)] = f.Contents
	}

	var meta metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, errors.New("E300").
			WithDetail("Failed to read bundler metafile").
			Wrap(err)
	}

	outRel := func(key string) string {
		rel, err := filepath.Rel(outDir, filepath.Join(root, filepath.FromSlash(key)))
		if err != nil {
			return key
		}
		return filepath.ToSlash(rel)
	}

	outputs := map[string]output{}
	for key, o := range meta.Outputs {
		if o.EntryPoint == "" {
			continue
		}
		src := filepath.Join(root, filepath.FromSlash(o.EntryPoint))
		out := output{file: outRel(key)}
		if o.CSSBundle != "" {
			out.css = []string{outRel(o.CSSBundle)}
		}
		outputs[src] = out

		srcRel, _ := filepath.Rel(root, src)
		bundle.Entries[filepath.ToSlash(srcRel)] = ManifestEntry{File: out.file, CSS: out.css}
	}

	htmlDoc, err := pg.render(root, b.config.PublicPath(), b.config.BasePath(), outputs)
	if err != nil {
		return nil, err
	}
	bundle.HTML = htmlDoc
	return bundle, nil
}

// bundlerError converts bundler diagnostics into an E300 error located at
// the first message.
func bundlerError(msgs []api.Message, root string) error {
	first := msgs[0]
	e := errors.New("E300").WithDetail(first.Text)
	if loc := first.Location; loc != nil {
		file := loc.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		e = e.WithLocation(file, loc.Line, loc.Column+1)
		if loc.Suggestion != "" {
			e = e.WithSuggestion("Did you mean " + loc.Suggestion + "?")
		}
	}
	if len(msgs) > 1 {
		more := make([]string, 0, len(msgs)-1)
		for _, m := range msgs[1:] {
			more = append(more, formatMessage(m))
		}
		e = e.WithExample(strings.Join(more, "\n"))
	}
	return e
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column+1, m.Text)
}
