package config

import (
	"encoding/json"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/devpack/internal/errors"
)

const (
	// DefaultPort is the port shared by the dev and preview servers.
	DefaultPort = 5173

	// DefaultOutDir is the default build output directory.
	DefaultOutDir = "dist"

	// DefaultEnvPrefix is the prefix of variables exposed to client code.
	DefaultEnvPrefix = "DEVPACK_"

	// DefaultAPITarget is the backend the /api prefix is forwarded to.
	DefaultAPITarget = "http://localhost:8080"

	// DefaultWatchInterval is the polling interval in milliseconds.
	DefaultWatchInterval = 100
)

// Config is the resolved build configuration of a project.
// It is read once at process start and treated as immutable afterwards;
// callers that need a variation work on a Clone.
type Config struct {
	// Root is the project root holding index.html.
	Root string `json:"root" yaml:"root"`

	// Base is the public base path the app is served under.
	Base string `json:"base" yaml:"base"`

	// PublicDir is copied verbatim into the output.
	PublicDir string `json:"publicDir" yaml:"publicDir"`

	// EnvPrefix selects the environment variables exposed to client code.
	EnvPrefix string `json:"envPrefix" yaml:"envPrefix"`

	// Plugins is the ordered list of build extensions.
	Plugins []PluginConfig `json:"plugins" yaml:"plugins"`

	Server  ServerConfig  `json:"server" yaml:"server"`
	Build   BuildConfig   `json:"build" yaml:"build"`
	Preview PreviewConfig `json:"preview" yaml:"preview"`
	Publish PublishConfig `json:"publish" yaml:"publish"`

	// dir is the directory relative paths resolve against.
	dir string

	// file is the config file the record was loaded from, if any.
	file string
}

// PluginConfig names a build extension and its options.
type PluginConfig struct {
	Name    string            `json:"name" yaml:"name"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// ServerConfig contains development server settings.
type ServerConfig struct {
	// Host is the binding scope: all interfaces, localhost, or an address.
	Host Host `json:"host" yaml:"host"`

	// Port is the dev server port. Zero picks a free port.
	Port int `json:"port" yaml:"port"`

	// StrictPort fails instead of trying the next free port.
	StrictPort bool `json:"strictPort" yaml:"strictPort"`

	// CORS answers cross-origin requests.
	CORS bool `json:"cors" yaml:"cors"`

	// Open opens the browser on start.
	Open bool `json:"open" yaml:"open"`

	// HMR enables the browser live-reload channel.
	HMR bool `json:"hmr" yaml:"hmr"`

	Watch WatchConfig `json:"watch" yaml:"watch"`

	// Proxy maps a path prefix, or a ^regex, to a forwarding rule.
	Proxy map[string]ProxyRule `json:"proxy" yaml:"proxy"`
}

// WatchConfig controls change detection.
type WatchConfig struct {
	// UsePolling detects changes by scanning instead of OS events.
	UsePolling bool `json:"usePolling" yaml:"usePolling"`

	// Interval is the polling interval in milliseconds.
	Interval int `json:"interval" yaml:"interval"`

	// Ignored holds extra glob patterns excluded from watching.
	Ignored []string `json:"ignored" yaml:"ignored"`
}

// PollInterval returns Interval as a duration.
func (w WatchConfig) PollInterval() time.Duration {
	if w.Interval <= 0 {
		return DefaultWatchInterval * time.Millisecond
	}
	return time.Duration(w.Interval) * time.Millisecond
}

// ProxyRule describes how matching requests are forwarded.
type ProxyRule struct {
	// Target is the absolute URL requests are forwarded to.
	Target string `json:"target" yaml:"target"`

	// ChangeOrigin presents the target's host and origin to the upstream.
	ChangeOrigin bool `json:"changeOrigin" yaml:"changeOrigin"`

	// InsecureSkipVerify disables upstream certificate verification.
	// Only the dev server honours it.
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`

	// Rewrite is applied in order to the request path before forwarding.
	Rewrite []RewriteRule `json:"rewrite,omitempty" yaml:"rewrite,omitempty"`
}

// RewriteRule replaces matches of Pattern in the request path.
type RewriteRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// BuildConfig contains production build settings.
type BuildConfig struct {
	OutDir      string   `json:"outDir" yaml:"outDir"`
	AssetsDir   string   `json:"assetsDir" yaml:"assetsDir"`
	Sourcemap   bool     `json:"sourcemap" yaml:"sourcemap"`
	Minify      Minifier `json:"minify" yaml:"minify"`
	Target      string   `json:"target" yaml:"target"`
	EmptyOutDir bool     `json:"emptyOutDir" yaml:"emptyOutDir"`
	Manifest    bool     `json:"manifest" yaml:"manifest"`
}

// PreviewConfig contains preview server settings.
type PreviewConfig struct {
	Host       Host `json:"host" yaml:"host"`
	Port       int  `json:"port" yaml:"port"`
	StrictPort bool `json:"strictPort" yaml:"strictPort"`

	// Proxy overrides Server.Proxy for preview when set.
	Proxy map[string]ProxyRule `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// PublishConfig names the bucket a build is uploaded to.
type PublishConfig struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
}

// Default returns the built-in configuration: a React single-page app on
// port 5173 that forwards /api to a backend on localhost:8080.
// Every call returns a freshly allocated record.
func Default() *Config {
	return &Config{
		Root:      ".",
		Base:      "/",
		PublicDir: "public",
		EnvPrefix: DefaultEnvPrefix,
		Plugins:   []PluginConfig{{Name: "react"}},
		Server: ServerConfig{
			Host:       AllInterfaces(),
			Port:       DefaultPort,
			StrictPort: true,
			CORS:       true,
			Open:       false,
			HMR:        true,
			Watch: WatchConfig{
				UsePolling: true,
				Interval:   DefaultWatchInterval,
				Ignored:    []string{},
			},
			Proxy: map[string]ProxyRule{
				"/api": {
					Target:             DefaultAPITarget,
					ChangeOrigin:       true,
					InsecureSkipVerify: true,
				},
			},
		},
		Build: BuildConfig{
			OutDir:      DefaultOutDir,
			AssetsDir:   "assets",
			Sourcemap:   false,
			Minify:      MinifyEsbuild,
			Target:      "es2020",
			EmptyOutDir: true,
			Manifest:    false,
		},
		Preview: PreviewConfig{
			Host:       AllInterfaces(),
			Port:       DefaultPort,
			StrictPort: true,
		},
	}
}

// Validate checks the record and returns the first problem found.
func (c *Config) Validate() error {
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validatePort("preview.port", c.Preview.Port); err != nil {
		return err
	}
	if err := c.Server.Host.validate("server.host"); err != nil {
		return err
	}
	if err := c.Preview.Host.validate("preview.host"); err != nil {
		return err
	}
	if err := ValidateProxy("server.proxy", c.Server.Proxy); err != nil {
		return err
	}
	if err := ValidateProxy("preview.proxy", c.Preview.Proxy); err != nil {
		return err
	}
	if !c.Build.Minify.Known() {
		return errors.New("E104").
			WithDetail("build.minify is " + strconv.Quote(string(c.Build.Minify))).
			WithSuggestion(`Use "esbuild", "terser" or false`)
	}
	if strings.TrimSpace(c.Build.OutDir) == "" {
		return errors.New("E100").
			WithDetail("build.outDir must not be empty")
	}
	if c.Server.Watch.Interval < 0 {
		return errors.New("E100").
			WithDetail("server.watch.interval must not be negative")
	}
	for i, p := range c.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("E103").
				WithDetail("plugins[" + strconv.Itoa(i) + "] has no name")
		}
	}
	if c.Base != "" && !strings.HasPrefix(c.Base, "/") && !strings.HasPrefix(c.Base, "./") {
		return errors.New("E100").
			WithDetail("base must start with / or ./, got " + strconv.Quote(c.Base))
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return errors.New("E101").
			WithDetail(field + " is " + strconv.Itoa(port) + "; ports must be between 0 and 65535")
	}
	return nil
}

// ValidateProxy checks a set of proxy rules. The field name is used in
// error details.
func ValidateProxy(field string, rules map[string]ProxyRule) error {
	for _, key := range sortedKeys(rules) {
		rule := rules[key]
		where := field + "[" + strconv.Quote(key) + "]"

		switch {
		case strings.HasPrefix(key, "^"):
			if _, err := regexp.Compile(key); err != nil {
				return errors.New("E102").
					WithDetail(where + ": invalid pattern").
					Wrap(err)
			}
		case strings.HasPrefix(key, "/"):
		default:
			return errors.New("E102").
				WithDetail(where + ": key must start with / or ^").
				WithExample(`"proxy": {"/api": {"target": "http://localhost:8080"}}`)
		}

		u, err := url.Parse(rule.Target)
		if err != nil || u.Host == "" {
			return errors.New("E102").
				WithDetail(where + ": target " + strconv.Quote(rule.Target) + " is not an absolute URL")
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return errors.New("E102").
				WithDetail(where + ": unsupported target scheme " + strconv.Quote(u.Scheme))
		}

		for i, rw := range rule.Rewrite {
			if _, err := regexp.Compile(rw.Pattern); err != nil {
				return errors.New("E102").
					WithDetail(where + ".rewrite[" + strconv.Itoa(i) + "]: invalid pattern").
					Wrap(err)
			}
		}
	}
	return nil
}

// Canonical renders the record as indented JSON with sorted map keys.
// The same record always renders to the same bytes.
func (c *Config) Canonical() []byte {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		// Host and Minifier are the only custom marshalers and never fail.
		panic("config: canonical encoding: " + err.Error())
	}
	return append(data, '\n')
}

// CanonicalYAML renders the record as YAML with sorted map keys.
func (c *Config) CanonicalYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Clone returns a deep copy of the record.
func (c *Config) Clone() *Config {
	out := *c
	if c.Plugins != nil {
		out.Plugins = make([]PluginConfig, len(c.Plugins))
		for i, p := range c.Plugins {
			out.Plugins[i] = PluginConfig{Name: p.Name, Options: cloneStrings(p.Options)}
		}
	}
	if c.Server.Watch.Ignored != nil {
		out.Server.Watch.Ignored = append([]string{}, c.Server.Watch.Ignored...)
	}
	out.Server.Proxy = cloneProxy(c.Server.Proxy)
	out.Preview.Proxy = cloneProxy(c.Preview.Proxy)
	return &out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneProxy(m map[string]ProxyRule) map[string]ProxyRule {
	if m == nil {
		return nil
	}
	out := make(map[string]ProxyRule, len(m))
	for k, r := range m {
		if r.Rewrite != nil {
			r.Rewrite = append([]RewriteRule{}, r.Rewrite...)
		}
		out[k] = r
	}
	return out
}

// EffectivePreviewProxy returns the proxy rules the preview server uses.
func (c *Config) EffectivePreviewProxy() map[string]ProxyRule {
	if c.Preview.Proxy != nil {
		return c.Preview.Proxy
	}
	return c.Server.Proxy
}

// DevAddress returns the listen address of the dev server.
func (c *Config) DevAddress() string {
	return net.JoinHostPort(c.Server.Host.ListenHost(), strconv.Itoa(c.Server.Port))
}

// PreviewAddress returns the listen address of the preview server.
func (c *Config) PreviewAddress() string {
	return net.JoinHostPort(c.Preview.Host.ListenHost(), strconv.Itoa(c.Preview.Port))
}

// Dir returns the directory relative paths resolve against.
func (c *Config) Dir() string {
	if c.dir == "" {
		return "."
	}
	return c.dir
}

// File returns the config file the record was loaded from, or "".
func (c *Config) File() string {
	return c.file
}

// RootPath returns the absolute project root.
func (c *Config) RootPath() string {
	return absJoin(c.Dir(), c.Root)
}

// OutputPath returns the absolute build output directory.
func (c *Config) OutputPath() string {
	return absJoin(c.RootPath(), c.Build.OutDir)
}

// PublicPath returns the absolute public directory.
func (c *Config) PublicPath() string {
	return absJoin(c.RootPath(), c.PublicDir)
}

// BasePath returns Base normalized to a leading and trailing slash.
func (c *Config) BasePath() string {
	base := strings.TrimPrefix(c.Base, ".")
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func absJoin(dir, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func sortedKeys(m map[string]ProxyRule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
