package dev

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/vango-dev/devpack/internal/build"
	"github.com/vango-dev/devpack/internal/errors"
)

// BuildResult contains the result of a build.
type BuildResult struct {
	// Success indicates if the build succeeded.
	Success bool

	// Duration is how long the build took.
	Duration time.Duration

	// Output is the formatted build error, if any.
	Output string

	// Error is the build error, if any.
	Error error
}

// Compiler runs development rebuilds and holds the latest good bundle.
type Compiler struct {
	inc *build.Incremental

	mu     sync.RWMutex
	bundle *build.Bundle
	err    error
}

// NewCompiler creates a compiler for the builder's project.
func NewCompiler(ctx context.Context, builder *build.Builder) (*Compiler, error) {
	inc, err := builder.Incremental(ctx)
	if err != nil {
		return nil, err
	}
	return &Compiler{inc: inc}, nil
}

// Build rebuilds the project. On failure the previous bundle keeps being
// served.
func (c *Compiler) Build(ctx context.Context) BuildResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return BuildResult{Duration: time.Since(start), Error: err, Output: err.Error()}
	}

	bundle, err := c.inc.Rebuild()
	duration := time.Since(start)

	c.mu.Lock()
	c.err = err
	if err == nil {
		c.bundle = bundle
	}
	c.mu.Unlock()

	if err != nil {
		return BuildResult{
			Duration: duration,
			Output:   formatBuildError(err),
			Error:    err,
		}
	}
	return BuildResult{Success: true, Duration: duration}
}

// Reset makes the next Build re-read index.html.
func (c *Compiler) Reset() {
	c.inc.Reset()
}

// Bundle returns the latest successful bundle, or nil.
func (c *Compiler) Bundle() *build.Bundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bundle
}

// Err returns the error of the latest build, or nil.
func (c *Compiler) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Stop releases the bundler.
func (c *Compiler) Stop() {
	c.inc.Dispose()
}

// formatBuildError renders err for the browser overlay.
func formatBuildError(err error) string {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}
	out := e.Error()
	if e.Location != nil {
		out = e.Location.String() + "\n" + out
	}
	if e.Detail != "" {
		out += "\n\n" + e.Detail
	}
	if e.Example != "" {
		out += "\n\n" + e.Example
	}
	return out
}
