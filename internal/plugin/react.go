package plugin

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// react compiles JSX for React. With the automatic runtime, components do
// not need to import React themselves.
type react struct {
	importSource string
	classic      bool
}

func newReact(options map[string]string) (Plugin, error) {
	r := &react{importSource: "react"}
	if src := options["jsxImportSource"]; src != "" {
		r.importSource = src
	}
	switch runtime := options["jsxRuntime"]; runtime {
	case "", "automatic":
	case "classic":
		r.classic = true
	default:
		return nil, fmt.Errorf("jsxRuntime must be automatic or classic, got %q", runtime)
	}
	return r, nil
}

func (r *react) Name() string { return "react" }

func (r *react) Setup(opts *api.BuildOptions, mode Mode) error {
	if r.classic {
		opts.JSX = api.JSXTransform
		opts.JSXFactory = "React.createElement"
		opts.JSXFragment = "React.Fragment"
	} else {
		opts.JSX = api.JSXAutomatic
		opts.JSXImportSource = r.importSource
		opts.JSXDev = mode == ModeDevelopment
	}

	if opts.Loader == nil {
		opts.Loader = map[string]api.Loader{}
	}
	opts.Loader[".js"] = api.LoaderJSX
	opts.Loader[".jsx"] = api.LoaderJSX
	return nil
}
