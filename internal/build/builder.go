package build

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/plugin"
)

// ManifestPath is where the manifest is written, relative to the output
// directory.
const ManifestPath = ".devpack/manifest.json"

// Result contains the build output.
type Result struct {
	// Duration is how long the build took.
	Duration time.Duration

	// OutDir is the absolute output directory.
	OutDir string

	// Files lists every written file, sorted by path.
	Files []File

	// BuildID identifies this build in the manifest.
	BuildID string

	// Entries maps source entries to their outputs.
	Entries map[string]ManifestEntry
}

// File is one file of the build output.
type File struct {
	// Path is relative to the output directory, with forward slashes.
	Path string

	// Size is the size in bytes.
	Size int64

	// GzipSize is the gzip-compressed size in bytes.
	GzipSize int64
}

// TotalSize returns the summed size of all files.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Options configures the builder.
type Options struct {
	// Minify overrides build.minify when set.
	Minify *config.Minifier

	// Sourcemap overrides build.sourcemap when set.
	Sourcemap *bool

	// Logger receives build diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OnProgress is called with progress updates.
	OnProgress func(step string)

	// Environ supplies the environment exposed to client code.
	// Defaults to os.Environ.
	Environ func() []string
}

// Builder bundles one project.
type Builder struct {
	config  *config.Config
	options Options
	plugins []plugin.Plugin
	logger  *slog.Logger
}

// New creates a builder and resolves the configured plugins.
func New(cfg *config.Config, options Options) (*Builder, error) {
	plugins, err := plugin.Resolve(cfg.Plugins)
	if err != nil {
		return nil, err
	}
	return &Builder{
		config:  cfg,
		options: options,
		plugins: plugins,
		logger:  logging.OrDefault(options.Logger),
	}, nil
}

func (b *Builder) minifier() config.Minifier {
	if b.options.Minify != nil {
		return *b.options.Minify
	}
	return b.config.Build.Minify
}

func (b *Builder) sourcemap() bool {
	if b.options.Sourcemap != nil {
		return *b.options.Sourcemap
	}
	return b.config.Build.Sourcemap
}

// Bundle runs a production bundle without touching the output directory.
func (b *Builder) Bundle(ctx context.Context) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pg, err := readPage(b.config.RootPath(), b.config.PublicPath(), b.config.BasePath())
	if err != nil {
		return nil, err
	}

	opts, err := b.bundlerOptions(pg.entries, plugin.ModeProduction)
	if err != nil {
		return nil, err
	}
	result := api.Build(opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.assemble(result, pg)
}

// Build performs a production build into the output directory.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	outDir := b.config.OutputPath()

	if err := checkOutDir(b.config.RootPath(), outDir, b.config.PublicPath()); err != nil {
		return nil, err
	}

	b.progress("Bundling...")
	bundle, err := b.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range bundle.Warnings {
		b.logger.Warn("bundler warning", slog.String("message", w))
	}

	if b.config.Build.EmptyOutDir {
		b.progress("Cleaning output directory...")
		if err := os.RemoveAll(outDir); err != nil {
			return nil, errors.New("E300").Wrap(err)
		}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.New("E300").Wrap(err)
	}

	b.progress("Copying public files...")
	if err := b.copyPublic(outDir); err != nil {
		return nil, err
	}

	b.progress("Writing bundle...")
	for _, rel := range bundle.Paths() {
		if err := writeFile(filepath.Join(outDir, filepath.FromSlash(rel)), bundle.Files[rel]); err != nil {
			return nil, errors.New("E300").Wrap(err)
		}
	}
	if err := writeFile(filepath.Join(outDir, "index.html"), bundle.HTML); err != nil {
		return nil, errors.New("E300").Wrap(err)
	}

	if b.minifier() == config.MinifyTerser {
		b.progress("Minifying with terser...")
		if err := b.runTerser(ctx, outDir, bundle.Paths()); err != nil {
			return nil, err
		}
	}

	result := &Result{
		OutDir:  outDir,
		BuildID: uuid.NewString(),
		Entries: bundle.Entries,
	}

	if b.config.Build.Manifest {
		b.progress("Writing manifest...")
		if err := writeManifest(outDir, result); err != nil {
			return nil, err
		}
	}

	files, err := collectFiles(outDir)
	if err != nil {
		return nil, errors.New("E300").Wrap(err)
	}
	result.Files = files
	result.Duration = time.Since(start)
	return result, nil
}

// Clean removes the build output directory.
func (b *Builder) Clean() error {
	outDir := b.config.OutputPath()
	if err := checkOutDir(b.config.RootPath(), outDir, b.config.PublicPath()); err != nil {
		return err
	}
	return os.RemoveAll(outDir)
}

// checkOutDir refuses output directories that would clobber the project:
// the root itself, anything outside it, and the public directory.
func checkOutDir(root, outDir, publicDir string) error {
	rel, err := filepath.Rel(root, outDir)
	switch {
	case err != nil, rel == ".", rel == "..", strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return errors.New("E302").
			WithDetail("build.outDir resolves to " + outDir + ", which is not inside the project root " + root).
			WithSuggestion("Use a sub-directory of the project, such as dist")
	case isWithin(publicDir, outDir), isWithin(outDir, publicDir):
		return errors.New("E302").
			WithDetail("build.outDir " + outDir + " overlaps publicDir " + publicDir).
			WithSuggestion("Use separate directories for the build output and public files")
	}
	return nil
}

// isWithin reports whether path is dir or lies below it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel))
}

// copyPublic copies publicDir verbatim. Source maps are skipped unless
// sourcemaps are enabled.
func (b *Builder) copyPublic(outDir string) error {
	srcDir := b.config.PublicPath()
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return nil
	}
	keepMaps := b.sourcemap()

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !keepMaps && strings.EqualFold(filepath.Ext(path), ".map") {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if err := copyFile(path, filepath.Join(outDir, rel)); err != nil {
			return errors.New("E300").
				WithDetail("Failed to copy " + rel).
				Wrap(err)
		}
		return nil
	})
}

type manifest struct {
	BuildID string                   `json:"buildId"`
	Entries map[string]ManifestEntry `json:"entries"`
}

// writeManifest writes the entry manifest.
func writeManifest(outDir string, result *Result) error {
	data, err := json.MarshalIndent(manifest{BuildID: result.BuildID, Entries: result.Entries}, "", "  ")
	if err != nil {
		return errors.New("E300").Wrap(err)
	}
	if err := writeFile(filepath.Join(outDir, filepath.FromSlash(ManifestPath)), append(data, '\n')); err != nil {
		return errors.New("E300").Wrap(err)
	}
	return nil
}

// ReadManifest reads the manifest of a build in outDir.
func ReadManifest(outDir string) (string, map[string]ManifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(ManifestPath)))
	if err != nil {
		return "", nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	return m.BuildID, m.Entries, nil
}

func collectFiles(outDir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(outDir, path)
		files = append(files, File{
			Path:     filepath.ToSlash(rel),
			Size:     int64(len(data)),
			GzipSize: gzipSize(data),
		})
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

// progress reports build progress.
func (b *Builder) progress(step string) {
	if b.options.OnProgress != nil {
		b.options.OnProgress(step)
	}
}

func gzipSize(data []byte) int64 {
	var buf bytes.Buffer
	zw, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return int64(buf.Len())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// copyFile copies a file, creating the destination directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
