package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// define replaces global identifiers with constant expressions. Each option
// maps an identifier to a JSON value.
type define struct {
	values map[string]string
}

func newDefine(options map[string]string) (Plugin, error) {
	for key, value := range options {
		if !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("define %s: value %q is not valid JSON", key, value)
		}
	}
	return &define{values: options}, nil
}

func (d *define) Name() string { return "define" }

func (d *define) Setup(opts *api.BuildOptions, _ Mode) error {
	if opts.Define == nil {
		opts.Define = map[string]string{}
	}
	for key, value := range d.values {
		opts.Define[key] = value
	}
	return nil
}
