package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/devpack/internal/errors"
)

// Host is a binding scope. In config files it is written as true (all
// interfaces), false (localhost only) or a string address.
// The zero value means localhost.
type Host struct {
	All     bool
	Address string
}

// AllInterfaces returns the scope that binds every interface.
func AllInterfaces() Host { return Host{All: true} }

// Localhost returns the scope that binds the loopback interface only.
func Localhost() Host { return Host{} }

// ParseHost parses the textual form used by flags and environment
// variables: "true", "false", or an address.
func ParseHost(s string) (Host, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return AllInterfaces(), nil
	case "false", "", "localhost":
		return Localhost(), nil
	}
	h := Host{Address: s}
	if err := h.validate("host"); err != nil {
		return Host{}, err
	}
	return h, nil
}

// IsAll reports whether the scope covers every interface.
func (h Host) IsAll() bool {
	return h.All || h.Address == "0.0.0.0" || h.Address == "::"
}

// ListenHost returns the host part of a listen address.
// The wildcard scope is the empty string.
func (h Host) ListenHost() string {
	switch {
	case h.IsAll():
		return ""
	case h.Address == "":
		return "localhost"
	default:
		return h.Address
	}
}

// String returns the textual form accepted by ParseHost.
func (h Host) String() string {
	switch {
	case h.All:
		return "true"
	case h.Address == "":
		return "false"
	default:
		return h.Address
	}
}

func (h Host) validate(field string) error {
	if h.All || h.Address == "" {
		return nil
	}
	if strings.ContainsAny(h.Address, " \t/") || strings.Contains(h.Address, "://") {
		return errors.New("E106").
			WithDetail(field + " " + strconv.Quote(h.Address) + " is not a host name or IP address").
			WithSuggestion("Use true for all interfaces, false for localhost, or a bare address")
	}
	return nil
}

func (h Host) value() any {
	switch {
	case h.All:
		return true
	case h.Address == "":
		return false
	default:
		return h.Address
	}
}

func (h *Host) set(v any) error {
	switch x := v.(type) {
	case bool:
		*h = Host{All: x}
	case string:
		*h = Host{Address: x}
	case nil:
		*h = Host{}
	default:
		return fmt.Errorf("host must be a boolean or a string, got %T", v)
	}
	return nil
}

// MarshalJSON encodes the scope as a boolean or an address.
func (h Host) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.value())
}

// UnmarshalJSON accepts a boolean or a string.
func (h *Host) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return h.set(v)
}

// MarshalYAML encodes the scope as a boolean or an address.
func (h Host) MarshalYAML() (any, error) {
	return h.value(), nil
}

// UnmarshalYAML accepts a boolean or a string.
func (h *Host) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return h.set(v)
}

// Minifier selects how production output is minified.
type Minifier string

const (
	// MinifyEsbuild minifies with the bundler itself.
	MinifyEsbuild Minifier = "esbuild"

	// MinifyTerser runs terser over the bundled scripts.
	MinifyTerser Minifier = "terser"

	// MinifyNone disables minification. Written as false in config files.
	MinifyNone Minifier = "false"
)

// ParseMinifier parses the textual form used by flags and environment
// variables.
func ParseMinifier(s string) (Minifier, error) {
	m := normalizeMinifier(s)
	if !m.Known() {
		return "", errors.New("E104").
			WithDetail("unknown minifier " + strconv.Quote(s)).
			WithSuggestion(`Use "esbuild", "terser" or false`)
	}
	return m, nil
}

func normalizeMinifier(s string) Minifier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "none", "":
		return MinifyNone
	case "true", "esbuild":
		return MinifyEsbuild
	case "terser":
		return MinifyTerser
	}
	return Minifier(s)
}

// Known reports whether m is a supported minifier.
func (m Minifier) Known() bool {
	switch m {
	case MinifyEsbuild, MinifyTerser, MinifyNone:
		return true
	}
	return false
}

// Enabled reports whether any minification runs.
func (m Minifier) Enabled() bool {
	return m == MinifyEsbuild || m == MinifyTerser
}

func (m Minifier) value() any {
	if m == MinifyNone {
		return false
	}
	return string(m)
}

func (m *Minifier) set(v any) error {
	switch x := v.(type) {
	case bool:
		if x {
			*m = MinifyEsbuild
		} else {
			*m = MinifyNone
		}
	case string:
		*m = normalizeMinifier(x)
	default:
		return fmt.Errorf("minify must be a boolean or a string, got %T", v)
	}
	return nil
}

// MarshalJSON encodes MinifyNone as false and others as strings.
func (m Minifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.value())
}

// UnmarshalJSON accepts a boolean or a string.
func (m *Minifier) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return m.set(v)
}

// MarshalYAML encodes MinifyNone as false and others as strings.
func (m Minifier) MarshalYAML() (any, error) {
	return m.value(), nil
}

// UnmarshalYAML accepts a boolean or a string.
func (m *Minifier) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return m.set(v)
}
