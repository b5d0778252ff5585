// Package plugin holds the build extensions a project lists in its
// configuration. Each plugin adjusts the bundler options before a build.
package plugin

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

// Mode is the kind of build a plugin is applied to.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Plugin adjusts bundler options.
type Plugin interface {
	Name() string
	Setup(opts *api.BuildOptions, mode Mode) error
}

// Factory builds a plugin from its configured options.
type Factory func(options map[string]string) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"react":  newReact,
		"define": newDefine,
	}
)

// Register adds or replaces a plugin factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the configured plugins in order.
func Resolve(configs []config.PluginConfig) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(configs))
	for i, pc := range configs {
		registryMu.RLock()
		factory, ok := registry[pc.Name]
		registryMu.RUnlock()
		if !ok {
			return nil, errors.New("E103").
				WithDetail("plugins[" + strconv.Itoa(i) + "]: " + strconv.Quote(pc.Name) + " is not registered").
				WithSuggestion("Available plugins: " + strings.Join(Names(), ", "))
		}
		p, err := factory(pc.Options)
		if err != nil {
			return nil, errors.New("E103").
				WithDetail("plugins[" + strconv.Itoa(i) + "]: " + pc.Name).
				Wrap(err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Apply runs Setup for each plugin in order.
func Apply(plugins []Plugin, opts *api.BuildOptions, mode Mode) error {
	for _, p := range plugins {
		if err := p.Setup(opts, mode); err != nil {
			return errors.New("E300").
				WithDetail("plugin " + p.Name() + " failed to set up").
				Wrap(err)
		}
	}
	return nil
}
