package plugin

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

func TestResolve_DefaultReact(t *testing.T) {
	plugins, err := Resolve(config.Default().Plugins)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(plugins) != 1 || plugins[0].Name() != "react" {
		t.Fatalf("Resolve() = %v, want [react]", plugins)
	}

	var opts api.BuildOptions
	if err := Apply(plugins, &opts, ModeProduction); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if opts.JSX != api.JSXAutomatic {
		t.Errorf("JSX = %v, want automatic", opts.JSX)
	}
	if opts.JSXImportSource != "react" {
		t.Errorf("JSXImportSource = %q, want react", opts.JSXImportSource)
	}
	if opts.JSXDev {
		t.Error("JSXDev should be false in production")
	}
	if opts.Loader[".js"] != api.LoaderJSX {
		t.Errorf(".js loader = %v, want JSX", opts.Loader[".js"])
	}
}

func TestReact_Options(t *testing.T) {
	plugins, err := Resolve([]config.PluginConfig{
		{Name: "react", Options: map[string]string{"jsxImportSource": "preact"}},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	var opts api.BuildOptions
	if err := Apply(plugins, &opts, ModeDevelopment); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if opts.JSXImportSource != "preact" {
		t.Errorf("JSXImportSource = %q, want preact", opts.JSXImportSource)
	}
	if !opts.JSXDev {
		t.Error("JSXDev should be true in development")
	}

	plugins, err = Resolve([]config.PluginConfig{
		{Name: "react", Options: map[string]string{"jsxRuntime": "classic"}},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	opts = api.BuildOptions{}
	_ = Apply(plugins, &opts, ModeProduction)
	if opts.JSX != api.JSXTransform || opts.JSXFactory != "React.createElement" {
		t.Errorf("classic runtime: JSX = %v, factory = %q", opts.JSX, opts.JSXFactory)
	}

	_, err = Resolve([]config.PluginConfig{
		{Name: "react", Options: map[string]string{"jsxRuntime": "magic"}},
	})
	if !errors.HasCode(err, "E103") {
		t.Errorf("bad runtime: err = %v, want E103", err)
	}
}

func TestResolve_Unknown(t *testing.T) {
	_, err := Resolve([]config.PluginConfig{{Name: "react"}, {Name: "vue"}})
	if err == nil {
		t.Fatal("Resolve should fail for an unknown plugin")
	}
	if !errors.HasCode(err, "E103") {
		t.Errorf("err = %v, want E103", err)
	}
}

type recordingPlugin struct {
	name  string
	order *[]string
}

func (p recordingPlugin) Name() string { return p.name }

func (p recordingPlugin) Setup(*api.BuildOptions, Mode) error {
	*p.order = append(*p.order, p.name)
	return nil
}

func TestResolve_PreservesOrder(t *testing.T) {
	var order []string
	Register("first", func(map[string]string) (Plugin, error) { return recordingPlugin{"first", &order}, nil })
	Register("second", func(map[string]string) (Plugin, error) { return recordingPlugin{"second", &order}, nil })
	defer func() {
		registryMu.Lock()
		delete(registry, "first")
		delete(registry, "second")
		registryMu.Unlock()
	}()

	plugins, err := Resolve([]config.PluginConfig{{Name: "second"}, {Name: "first"}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if err := Apply(plugins, &api.BuildOptions{}, ModeProduction); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("setup order = %v, want [second first]", order)
	}
}

func TestDefine(t *testing.T) {
	plugins, err := Resolve([]config.PluginConfig{
		{Name: "define", Options: map[string]string{"__APP_VERSION__": `"1.2.3"`}},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	var opts api.BuildOptions
	_ = Apply(plugins, &opts, ModeProduction)
	if opts.Define["__APP_VERSION__"] != `"1.2.3"` {
		t.Errorf("Define = %v", opts.Define)
	}

	_, err = Resolve([]config.PluginConfig{
		{Name: "define", Options: map[string]string{"X": "not json"}},
	})
	if !errors.HasCode(err, "E103") {
		t.Errorf("invalid define: err = %v, want E103", err)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["react"] || !found["define"] {
		t.Errorf("Names() = %v, want react and define", names)
	}
}
