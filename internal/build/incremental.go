package build

import (
	"context"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/plugin"
)

// Incremental rebuilds the project in development mode, reusing bundler
// state between builds. It is safe for concurrent use, but rebuilds are
// serialized.
type Incremental struct {
	builder *Builder

	mu   sync.Mutex
	page *page
	ctx  api.BuildContext
}

// Incremental returns a development rebuilder. Call Dispose when done.
func (b *Builder) Incremental(ctx context.Context) (*Incremental, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Incremental{builder: b}, nil
}

// Rebuild bundles the project, creating the bundler context on first use or
// after Reset.
func (inc *Incremental) Rebuild() (*Bundle, error) {
	inc.mu.Lock()
	defer inc.mu.Unlock()

	if inc.ctx == nil {
		if err := inc.open(); err != nil {
			return nil, err
		}
	}
	result := inc.ctx.Rebuild()
	return inc.builder.assemble(result, inc.page)
}

// open reads index.html and creates the bundler context for its entries.
func (inc *Incremental) open() error {
	b := inc.builder
	pg, err := readPage(b.config.RootPath(), b.config.PublicPath(), b.config.BasePath())
	if err != nil {
		return err
	}
	opts, err := b.bundlerOptions(pg.entries, plugin.ModeDevelopment)
	if err != nil {
		return err
	}
	opts.MinifyWhitespace = false
	opts.MinifyIdentifiers = false
	opts.MinifySyntax = false

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		if len(cerr.Errors) > 0 {
			return bundlerError(cerr.Errors, b.config.RootPath())
		}
		return errors.New("E300").WithDetail("Failed to create bundler context")
	}
	inc.page = pg
	inc.ctx = bctx
	return nil
}

// Reset discards the bundler context so the next Rebuild re-reads
// index.html. Used when the entry set may have changed.
func (inc *Incremental) Reset() {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	inc.dispose()
}

// Dispose releases the bundler context. It is safe to call more than once.
func (inc *Incremental) Dispose() {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	inc.dispose()
}

func (inc *Incremental) dispose() {
	if inc.ctx != nil {
		inc.ctx.Dispose()
		inc.ctx = nil
	}
	inc.page = nil
}
