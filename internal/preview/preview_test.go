package preview

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/devpack/internal/build"
	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func previewConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{Dir: dir, SkipEnv: true})
	require.NoError(t, err)
	cfg.Preview.Host = config.Host{Address: "127.0.0.1"}
	cfg.Preview.Port = 0
	return cfg
}

func startPreview(t *testing.T, cfg *config.Config) (*Server, string) {
	t.Helper()
	srv, err := New(Options{
		Config:  cfg,
		Logger:  logging.Discard(),
		Metrics: metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("preview server did not become ready")
	}
	if srv.Addr() == nil {
		err := <-done
		done <- err
		t.Fatalf("Start error: %v", err)
	}
	return srv, "http://" + srv.Addr().String()
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestPreview_ServesBuildOnItsPort(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"index.html": `<!DOCTYPE html>
<html>
<head><title>app</title></head>
<body>
<div id="root"></div>
<script type="module" src="/src/main.js"></script>
</body>
</html>
`,
		"src/main.js": "document.getElementById('root').textContent = 'previewed'\n",
	})
	cfg := previewConfig(t, dir)

	builder, err := build.New(cfg, build.Options{
		Logger:  logging.Discard(),
		Environ: func() []string { return nil },
	})
	require.NoError(t, err)
	_, err = builder.Build(context.Background())
	require.NoError(t, err)

	srv, base := startPreview(t, cfg)
	assert.NotZero(t, srv.Addr().(*net.TCPAddr).Port)

	resp, body := get(t, base+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, NoCache, resp.Header.Get("Cache-Control"))
	assert.NotContains(t, body, "/__devpack/reload", "preview must not inject the reload client")

	start := strings.Index(body, `src="/assets/`)
	require.GreaterOrEqual(t, start, 0, "index.html should reference the bundle:\n%s", body)
	src := body[start+len(`src="`):]
	src = src[:strings.Index(src, `"`)]

	resp, js := get(t, base+src)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, js, "previewed")
	assert.Equal(t, ImmutableCache, resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
}

func TestPreview_SPAFallbackAndCaching(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"dist/index.html":           "<html><body>app shell</body></html>",
		"dist/assets/main-abc12.js": "console.log(1)",
		"dist/robots.txt":           "User-agent: *",
	})
	cfg := previewConfig(t, dir)
	_, base := startPreview(t, cfg)

	resp, body := get(t, base+"/users/42")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "app shell")
	assert.Equal(t, NoCache, resp.Header.Get("Cache-Control"))

	resp, body = get(t, base+"/index.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "index.html must not redirect")
	assert.Contains(t, body, "app shell")

	resp, _ = get(t, base+"/robots.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, NoCache, resp.Header.Get("Cache-Control"))

	resp, _ = get(t, base+"/assets/main-abc12.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ImmutableCache, resp.Header.Get("Cache-Control"))

	resp, _ = get(t, base+"/assets/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreview_Proxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		w.Write([]byte("from api"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"dist/index.html": "<html></html>"})
	cfg := previewConfig(t, dir)
	cfg.Server.Proxy = map[string]config.ProxyRule{
		"/api": {Target: upstream.URL, ChangeOrigin: true},
	}
	_, base := startPreview(t, cfg)

	resp, body := get(t, base+"/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from api", body)
	assert.Equal(t, "/api/users", resp.Header.Get("X-Upstream-Path"))
}

func TestPreview_MissingBuild(t *testing.T) {
	cfg := previewConfig(t, t.TempDir())
	srv, err := New(Options{Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, "E202"), "want E202, got %v", err)
	assert.Nil(t, srv.Addr(), "nothing should be bound")
	assert.True(t, closed(srv.Ready()), "Ready should be closed after Start fails")
}

func TestPreview_StrictPort(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"dist/index.html": "<html></html>"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := previewConfig(t, dir)
	cfg.Preview.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Preview.StrictPort = true
	srv, err := New(Options{Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, "E200"), "want E200, got %v", err)
	assert.True(t, closed(srv.Ready()), "Ready should be closed after Start fails")
	assert.Nil(t, srv.Addr())
}

func TestCachePolicy(t *testing.T) {
	tests := []struct {
		assetsDir string
		rel       string
		want      string
	}{
		{"assets", "assets/main-1a2b.js", ImmutableCache},
		{"assets/", "assets/img/logo-1a2b.png", ImmutableCache},
		{"assets", "assetsx/main.js", NoCache},
		{"assets", "index.html", NoCache},
		{"assets", "favicon.svg", NoCache},
		{"", "assets/main.js", NoCache},
		{"static/js", "static/js/app.js", ImmutableCache},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CachePolicy(tt.assetsDir, tt.rel), "CachePolicy(%q, %q)", tt.assetsDir, tt.rel)
	}
}
