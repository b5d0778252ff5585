package build

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vango-dev/devpack/internal/errors"
)

// npxCommand launches terser. It is resolved from PATH.
var npxCommand = "npx"

// runTerser minifies every JavaScript output in place.
func (b *Builder) runTerser(ctx context.Context, outDir string, paths []string) error {
	bin, err := exec.LookPath(npxCommand)
	if err != nil {
		return errors.New("E303").
			WithDetail("build.minify is terser, but npx was not found in PATH").
			WithSuggestion("Install Node.js and terser (npm install -D terser), or set build.minify to esbuild")
	}

	for _, rel := range paths {
		if !strings.HasSuffix(rel, ".js") {
			continue
		}
		file := filepath.Join(outDir, filepath.FromSlash(rel))
		args := []string{"--no-install", "terser", file, "--module", "--compress", "--mangle", "-o", file}
		if b.sourcemap() {
			if _, err := os.Stat(file + ".map"); err == nil {
				args = append(args, "--source-map",
					"content='"+file+".map',url='"+filepath.Base(file)+".map'")
			}
		}

		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Dir = b.config.RootPath()
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = err.Error()
			}
			return errors.New("E303").
				WithDetail("terser failed on " + rel + ": " + detail).
				Wrap(err)
		}
	}
	return nil
}
