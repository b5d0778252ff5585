package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/devpack/internal/errors"
)

// ConfigFileNames are searched in order when no file is given.
var ConfigFileNames = []string{"devpack.json", "devpack.yaml", "devpack.yml"}

// EnvPrefix is the prefix of the environment overrides read by Load.
const EnvPrefix = "DEVPACK"

// LoadOptions controls how Load resolves the configuration.
type LoadOptions struct {
	// Dir is the project directory. Defaults to the working directory.
	Dir string

	// File is an explicit config file. When empty, ConfigFileNames are
	// searched in Dir and a missing file is not an error.
	File string

	// SkipEnv disables the environment layer.
	SkipEnv bool

	// Overrides is the last layer, usually taken from CLI flags.
	Overrides Overrides
}

// Overrides holds values set explicitly on the command line.
// Nil fields leave the lower layers untouched.
type Overrides struct {
	Host        *Host
	Port        *int
	StrictPort  *bool
	Open        *bool
	OutDir      *string
	Sourcemap   *bool
	Minify      *Minifier
	PreviewHost *Host
	PreviewPort *int
	Bucket      *string
	Prefix      *string
}

// Load merges the built-in defaults, the config file, the environment and
// the overrides, later layers winning, and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.New("E100").Wrap(err)
	}

	cfg := Default()
	cfg.dir = dir

	path, err := findConfigFile(dir, opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.file = path
	}

	if !opts.SkipEnv {
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
	}

	opts.Overrides.apply(cfg)

	if err := cfg.Validate(); err != nil {
		if e, ok := err.(*errors.Error); ok && path != "" && e.Location == nil {
			e.Location = &errors.Location{File: path}
		}
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(dir, file string) (string, error) {
	if file != "" {
		path, err := filepath.Abs(file)
		if err != nil {
			return "", errors.New("E100").Wrap(err)
		}
		if _, err := os.Stat(path); err != nil {
			return "", errors.New("E100").
				WithDetail(fmt.Sprintf("Config file %s not found", file)).
				Wrap(err)
		}
		return path, nil
	}

	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	path, _ := findConfigFile(dir, "")
	return path != ""
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New("E100").WithLocation(path, 0, 0).Wrap(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && err != io.EOF {
			return errors.New("E100").
				WithDetail(fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)).
				WithLocation(path, 0, 0).
				WithSuggestion("Check that the file is valid YAML and uses known keys")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			e := errors.New("E100").
				WithDetail(fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)).
				WithSuggestion("Check that the file is valid JSON and uses known keys")
			if se, ok := err.(*json.SyntaxError); ok {
				line, col := lineCol(data, se.Offset)
				return e.WithLocation(path, line, col)
			}
			return e.WithLocation(path, 0, 0)
		}
	}

	fc.apply(cfg)
	return nil
}

func lineCol(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// envConfig lists the variables read with the DEVPACK_ prefix.
// Host and minifier values are parsed after decoding so that unset
// variables stay nil.
type envConfig struct {
	Host        *string `envconfig:"HOST"`
	Port        *int    `envconfig:"PORT"`
	StrictPort  *bool   `envconfig:"STRICT_PORT"`
	UsePolling  *bool   `envconfig:"USE_POLLING"`
	OutDir      *string `envconfig:"OUT_DIR"`
	Sourcemap   *bool   `envconfig:"SOURCEMAP"`
	Minify      *string `envconfig:"MINIFY"`
	PreviewHost *string `envconfig:"PREVIEW_HOST"`
	PreviewPort *int    `envconfig:"PREVIEW_PORT"`
}

// OverrideVars returns the full names of the variables read by Load as
// configuration overrides, such as DEVPACK_PORT.
func OverrideVars() []string {
	t := reflect.TypeOf(envConfig{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		names = append(names, EnvPrefix+"_"+t.Field(i).Tag.Get("envconfig"))
	}
	return names
}

// IsOverrideVar reports whether name is one of OverrideVars.
func IsOverrideVar(name string) bool {
	return slices.Contains(OverrideVars(), name)
}

func applyEnv(cfg *Config) error {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return errors.New("E105").
			WithDetail(err.Error()).
			WithSuggestion("Unset the variable or give it a value of the right type")
	}

	if env.Host != nil {
		h, err := ParseHost(*env.Host)
		if err != nil {
			return errors.New("E105").WithDetail(EnvPrefix + "_HOST").Wrap(err)
		}
		cfg.Server.Host = h
	}
	if env.PreviewHost != nil {
		h, err := ParseHost(*env.PreviewHost)
		if err != nil {
			return errors.New("E105").WithDetail(EnvPrefix + "_PREVIEW_HOST").Wrap(err)
		}
		cfg.Preview.Host = h
	}
	if env.Minify != nil {
		m, err := ParseMinifier(*env.Minify)
		if err != nil {
			return errors.New("E105").WithDetail(EnvPrefix + "_MINIFY").Wrap(err)
		}
		cfg.Build.Minify = m
	}
	setInt(&cfg.Server.Port, env.Port)
	setBool(&cfg.Server.StrictPort, env.StrictPort)
	setBool(&cfg.Server.Watch.UsePolling, env.UsePolling)
	setString(&cfg.Build.OutDir, env.OutDir)
	setBool(&cfg.Build.Sourcemap, env.Sourcemap)
	setInt(&cfg.Preview.Port, env.PreviewPort)
	return nil
}

func (o Overrides) apply(cfg *Config) {
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.PreviewHost != nil {
		cfg.Preview.Host = *o.PreviewHost
	}
	if o.Minify != nil {
		cfg.Build.Minify = *o.Minify
	}
	setInt(&cfg.Server.Port, o.Port)
	setBool(&cfg.Server.StrictPort, o.StrictPort)
	setBool(&cfg.Server.Open, o.Open)
	setString(&cfg.Build.OutDir, o.OutDir)
	setBool(&cfg.Build.Sourcemap, o.Sourcemap)
	setInt(&cfg.Preview.Port, o.PreviewPort)
	setString(&cfg.Publish.Bucket, o.Bucket)
	setString(&cfg.Publish.Prefix, o.Prefix)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
