package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vango-dev/devpack/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.File() != "" {
		t.Errorf("File() = %q, want empty", cfg.File())
	}
	if diff := cmp.Diff(Default(), cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("Load without a file should equal Default() (-want +got):\n%s", diff)
	}
}

func TestLoad_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devpack.json", `{
  "server": {
    "proxy": {
      "/b": {"target": "http://localhost:2"},
      "/a": {"target": "http://localhost:1"},
      "/api": {"target": "http://localhost:8080", "changeOrigin": true}
    }
  }
}`)

	first, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	second, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !bytes.Equal(first.Canonical(), second.Canonical()) {
		t.Errorf("Canonical output differs between loads:\n%s\nvs\n%s", first.Canonical(), second.Canonical())
	}
}

func TestLoad_CanonicalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devpack.json", string(Default().Canonical()))

	cfg, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !bytes.Equal(Default().Canonical(), cfg.Canonical()) {
		t.Errorf("loading the canonical default should reproduce it:\n%s", cfg.Canonical())
	}
}

func TestLoad_JSONLayering(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "devpack.json", `{
  "server": {
    "port": 3000,
    "proxy": {
      "/graphql": "http://localhost:4000",
      "/legacy": {"target": "https://legacy.local", "secure": false}
    }
  },
  "build": {"minify": false, "sourcemap": true}
}`)

	cfg, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.File() != path {
		t.Errorf("File() = %q, want %q", cfg.File(), path)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	// Keys not in the file keep their defaults.
	if !cfg.Server.StrictPort || !cfg.Server.Host.IsAll() {
		t.Error("unset server keys should keep their defaults")
	}
	if cfg.Build.OutDir != "dist" {
		t.Errorf("Build.OutDir = %q, want dist", cfg.Build.OutDir)
	}
	if cfg.Build.Minify != MinifyNone {
		t.Errorf("Build.Minify = %q, want %q", cfg.Build.Minify, MinifyNone)
	}
	if !cfg.Build.Sourcemap {
		t.Error("Build.Sourcemap should be true")
	}

	want := map[string]ProxyRule{
		"/graphql": {Target: "http://localhost:4000"},
		"/legacy":  {Target: "https://legacy.local", InsecureSkipVerify: true},
	}
	if diff := cmp.Diff(want, cfg.Server.Proxy); diff != "" {
		t.Errorf("a proxy map in the file replaces the default (-want +got):\n%s", diff)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devpack.yaml", `
server:
  host: false
  watch:
    usePolling: false
  proxy:
    /api:
      target: http://localhost:9000
      rewrite:
        - pattern: ^/api
          replacement: ""
preview:
  host: 127.0.0.1
  port: 4173
plugins:
  - name: react
    options:
      jsxImportSource: preact
`)

	cfg, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Host.IsAll() || cfg.Server.Host.ListenHost() != "localhost" {
		t.Errorf("Server.Host = %v, want localhost", cfg.Server.Host)
	}
	if cfg.Server.Watch.UsePolling {
		t.Error("Server.Watch.UsePolling should be false")
	}
	if got := cfg.Preview.Host.ListenHost(); got != "127.0.0.1" {
		t.Errorf("Preview.Host = %q, want 127.0.0.1", got)
	}
	if cfg.Preview.Port != 4173 {
		t.Errorf("Preview.Port = %d, want 4173", cfg.Preview.Port)
	}

	wantRule := ProxyRule{
		Target:  "http://localhost:9000",
		Rewrite: []RewriteRule{{Pattern: "^/api", Replacement: ""}},
	}
	if diff := cmp.Diff(wantRule, cfg.Server.Proxy["/api"]); diff != "" {
		t.Errorf("/api rule mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Plugins[0].Options["jsxImportSource"]; got != "preact" {
		t.Errorf("plugin option = %q, want preact", got)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	path := writeFile(t, other, "custom.json", `{"build": {"outDir": "public_html"}}`)

	cfg, err := Load(LoadOptions{Dir: dir, File: path, SkipEnv: true})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Build.OutDir != "public_html" {
		t.Errorf("Build.OutDir = %q, want public_html", cfg.Build.OutDir)
	}

	_, err = Load(LoadOptions{Dir: dir, File: filepath.Join(dir, "missing.json"), SkipEnv: true})
	if !errors.HasCode(err, "E100") {
		t.Errorf("missing explicit file: err = %v, want E100", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    string
	}{
		{"invalid json", "devpack.json", "{\n  \"server\": {\n    \"port\": ,\n  }\n}", "E100"},
		{"unknown key", "devpack.json", `{"sever": {"port": 1}}`, "E100"},
		{"wrong type", "devpack.json", `{"server": {"port": "fast"}}`, "E100"},
		{"invalid yaml", "devpack.yml", "server: [\n", "E100"},
		{"unknown yaml key", "devpack.yaml", "build:\n  outdir: x\n", "E100"},
		{"invalid port", "devpack.json", `{"server": {"port": 99999}}`, "E101"},
		{"invalid proxy", "devpack.json", `{"server": {"proxy": {"/api": "not a url"}}}`, "E102"},
		{"invalid minifier", "devpack.json", `{"build": {"minify": "uglify"}}`, "E104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, tt.file, tt.content)

			_, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("err is %T, want *errors.Error", err)
			}
			if e.Location == nil || e.Location.File != path {
				t.Errorf("Location = %v, want file %s", e.Location, path)
			}
		})
	}
}

func TestLoad_SyntaxErrorLocation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devpack.json", "{\n  \"server\": {\n    \"port\": ,\n  }\n}")

	_, err := Load(LoadOptions{Dir: dir, SkipEnv: true})
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("err is %T, want *errors.Error", err)
	}
	if e.Location.Line != 3 {
		t.Errorf("Location.Line = %d, want 3", e.Location.Line)
	}
	if !strings.HasPrefix(e.Detail, "Failed to parse devpack.json: ") {
		t.Errorf("Detail = %q, want the file name and parser message", e.Detail)
	}
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devpack.json", `{"server": {"port": 3000}}`)

	t.Setenv("DEVPACK_PORT", "4000")
	t.Setenv("DEVPACK_HOST", "127.0.0.1")
	t.Setenv("DEVPACK_MINIFY", "terser")
	t.Setenv("DEVPACK_SOURCEMAP", "true")
	t.Setenv("DEVPACK_USE_POLLING", "false")

	cfg, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000 (env beats file)", cfg.Server.Port)
	}
	if got := cfg.Server.Host.ListenHost(); got != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", got)
	}
	if cfg.Build.Minify != MinifyTerser {
		t.Errorf("Build.Minify = %q, want terser", cfg.Build.Minify)
	}
	if !cfg.Build.Sourcemap {
		t.Error("Build.Sourcemap should be true")
	}
	if cfg.Server.Watch.UsePolling {
		t.Error("Server.Watch.UsePolling should be false")
	}
	// Unset variables leave lower layers alone.
	if !cfg.Server.StrictPort {
		t.Error("Server.StrictPort should keep its default")
	}
}

func TestLoad_EnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DEVPACK_PORT", "abc"},
		{"DEVPACK_STRICT_PORT", "maybe"},
		{"DEVPACK_MINIFY", "uglify"},
		{"DEVPACK_HOST", "http://x"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(LoadOptions{Dir: t.TempDir()})
			if !errors.HasCode(err, "E105") {
				t.Errorf("err = %v, want E105", err)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEVPACK_PORT", "4000")

	port := 6000
	strict := false
	host := Localhost()
	outDir := "build"
	minify := MinifyNone

	cfg, err := Load(LoadOptions{
		Dir: t.TempDir(),
		Overrides: Overrides{
			Port:       &port,
			StrictPort: &strict,
			Host:       &host,
			OutDir:     &outDir,
			Minify:     &minify,
		},
	})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000 (flags beat env)", cfg.Server.Port)
	}
	if cfg.Server.StrictPort {
		t.Error("Server.StrictPort should be false")
	}
	if cfg.Server.Host.IsAll() {
		t.Error("Server.Host should be localhost")
	}
	if cfg.Build.OutDir != "build" {
		t.Errorf("Build.OutDir = %q, want build", cfg.Build.OutDir)
	}
	if cfg.Build.Minify != MinifyNone {
		t.Errorf("Build.Minify = %q, want none", cfg.Build.Minify)
	}
}

func TestOverrideVars(t *testing.T) {
	want := []string{
		"DEVPACK_HOST", "DEVPACK_PORT", "DEVPACK_STRICT_PORT", "DEVPACK_USE_POLLING",
		"DEVPACK_OUT_DIR", "DEVPACK_SOURCEMAP", "DEVPACK_MINIFY",
		"DEVPACK_PREVIEW_HOST", "DEVPACK_PREVIEW_PORT",
	}
	if diff := cmp.Diff(want, OverrideVars()); diff != "" {
		t.Errorf("OverrideVars mismatch (-want +got):\n%s", diff)
	}
	if !IsOverrideVar("DEVPACK_PORT") {
		t.Error("IsOverrideVar(DEVPACK_PORT) = false, want true")
	}
	if IsOverrideVar("DEVPACK_API_URL") {
		t.Error("IsOverrideVar(DEVPACK_API_URL) = true, want false")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("Exists should be false for an empty directory")
	}
	writeFile(t, dir, "devpack.yml", "build:\n  outDir: dist\n")
	if !Exists(dir) {
		t.Error("Exists should find devpack.yml")
	}
}
