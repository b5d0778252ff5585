package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
)

type seenRequest struct {
	Path   string
	Query  string
	Host   string
	Origin string
}

type recorder struct {
	mu   sync.Mutex
	seen []seenRequest
}

func (rec *recorder) last() seenRequest {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.seen) == 0 {
		return seenRequest{}
	}
	return rec.seen[len(rec.seen)-1]
}

func newUpstream(t *testing.T, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.seen = append(rec.seen, seenRequest{
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Host:   r.Host,
			Origin: r.Header.Get("Origin"),
		})
		rec.mu.Unlock()
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "localhost:5173"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func fallback() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "local")
	})
}

func TestProxy_PreservesPathAndRewritesOrigin(t *testing.T) {
	upstream, seen := newUpstream(t, "from api")

	p, err := New(map[string]config.ProxyRule{
		"/api": {Target: upstream.URL, ChangeOrigin: true, InsecureSkipVerify: true},
	}, WithLogger(logging.Discard()))
	require.NoError(t, err)

	resp := get(t, p.Handler(fallback()), "/api/x?page=2", http.Header{
		"Origin": {"http://localhost:5173"},
	})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "from api", resp.Body.String())

	u, _ := url.Parse(upstream.URL)
	got := seen.last()
	assert.Equal(t, "/api/x", got.Path)
	assert.Equal(t, "page=2", got.Query)
	assert.Equal(t, u.Host, got.Host)
	assert.Equal(t, upstream.URL, got.Origin)
}

func TestProxy_WithoutChangeOriginKeepsHost(t *testing.T) {
	upstream, seen := newUpstream(t, "ok")

	p, err := New(map[string]config.ProxyRule{
		"/api": {Target: upstream.URL},
	}, WithLogger(logging.Discard()))
	require.NoError(t, err)

	get(t, p.Handler(fallback()), "/api/users", http.Header{"Origin": {"http://localhost:5173"}})

	got := seen.last()
	assert.Equal(t, "localhost:5173", got.Host)
	assert.Equal(t, "http://localhost:5173", got.Origin)
}

func TestProxy_NonMatchingGoesToNext(t *testing.T) {
	upstream, seen := newUpstream(t, "api")

	p, err := New(map[string]config.ProxyRule{"/api": {Target: upstream.URL}})
	require.NoError(t, err)

	resp := get(t, p.Handler(fallback()), "/src/main.jsx", nil)
	assert.Equal(t, "local", resp.Body.String())
	assert.Equal(t, seenRequest{}, seen.last())

	resp = get(t, p, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProxy_LongestPrefixWins(t *testing.T) {
	v1, _ := newUpstream(t, "v1")
	v2, _ := newUpstream(t, "v2")
	ws, _ := newUpstream(t, "pattern")

	p, err := New(map[string]config.ProxyRule{
		"/api":      {Target: v1.URL},
		"/api/v2":   {Target: v2.URL},
		"^/.*\\.ws": {Target: ws.URL},
	})
	require.NoError(t, err)

	keys := []string{}
	for _, rt := range p.Routes() {
		keys = append(keys, rt.Key)
	}
	assert.Equal(t, []string{"/api/v2", "/api", "^/.*\\.ws"}, keys)

	h := p.Handler(fallback())
	assert.Equal(t, "v2", get(t, h, "/api/v2/users", nil).Body.String())
	assert.Equal(t, "v1", get(t, h, "/api/v1/users", nil).Body.String())
	assert.Equal(t, "pattern", get(t, h, "/live/feed.ws", nil).Body.String())
}

func TestProxy_Rewrite(t *testing.T) {
	upstream, seen := newUpstream(t, "ok")

	p, err := New(map[string]config.ProxyRule{
		"/api": {
			Target:  upstream.URL + "/v1",
			Rewrite: []config.RewriteRule{{Pattern: "^/api", Replacement: ""}},
		},
	})
	require.NoError(t, err)

	get(t, p.Handler(fallback()), "/api/users", nil)
	assert.Equal(t, "/v1/users", seen.last().Path)
}

func TestProxy_UnreachableAnswers502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	target := dead.URL
	dead.Close()

	m := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))
	p, err := New(map[string]config.ProxyRule{"/api": {Target: target}},
		WithLogger(logging.Discard()), WithMetrics(m))
	require.NoError(t, err)

	resp := get(t, p.Handler(fallback()), "/api/x", nil)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "unreachable")

	assert.Contains(t, gather(t, m), `devpack_proxy_requests_total{route="/api",status="error"} 1`)
}

func gather(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestProxy_InsecureSkipVerify(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "tls ok")
	}))
	defer upstream.Close()

	rules := map[string]config.ProxyRule{
		"/api": {Target: upstream.URL, InsecureSkipVerify: true},
	}

	dev, err := New(rules, WithAllowInsecure(true), WithLogger(logging.Discard()))
	require.NoError(t, err)
	resp := get(t, dev.Handler(fallback()), "/api/x", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "tls ok", resp.Body.String())

	preview, err := New(rules, WithLogger(logging.Discard()))
	require.NoError(t, err)
	resp = get(t, preview.Handler(fallback()), "/api/x", nil)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestProxy_WebSocketUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, append([]byte("echo: "), msg...))
	}))
	defer upstream.Close()

	p, err := New(map[string]config.ProxyRule{
		"/socket": {Target: "ws" + strings.TrimPrefix(upstream.URL, "http"), ChangeOrigin: true},
	}, WithLogger(logging.Discard()))
	require.NoError(t, err)

	front := httptest.NewServer(p.Handler(fallback()))
	defer front.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(front.URL, "http")+"/socket", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", string(msg))
}

func TestNew_InvalidRule(t *testing.T) {
	_, err := New(map[string]config.ProxyRule{"api": {Target: "http://localhost:8080"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, "E102"))
}
