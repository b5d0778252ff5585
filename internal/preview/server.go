package preview

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/listen"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
	"github.com/vango-dev/devpack/internal/proxy"
)

const (
	// ImmutableCache is sent for hashed files under the assets directory.
	ImmutableCache = "public, max-age=31536000, immutable"

	// NoCache is sent for index.html and other unhashed files.
	NoCache = "no-cache"
)

// Options configures the preview server.
type Options struct {
	// Config is the project configuration.
	Config *config.Config

	// Logger receives server logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records server metrics. May be nil.
	Metrics *metrics.Metrics

	// OnReady is called once the server is listening.
	OnReady func(urls listen.URLs)
}

// Server serves a finished production build.
type Server struct {
	config  *config.Config
	options Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	proxy   *proxy.Proxy
	outDir  string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	readyOnce  sync.Once
	stopOnce   sync.Once
}

// New creates a preview server for cfg's output directory.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := logging.OrDefault(opts.Logger)

	px, err := proxy.New(cfg.EffectivePreviewProxy(),
		proxy.WithLogger(logger),
		proxy.WithMetrics(opts.Metrics),
	)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:  cfg,
		options: opts,
		logger:  logger,
		metrics: opts.Metrics,
		proxy:   px,
		outDir:  cfg.OutputPath(),
		ready:   make(chan struct{}),
	}, nil
}

// CheckOutput returns E202 when outDir holds no index.html.
func CheckOutput(outDir string) error {
	info, err := os.Stat(filepath.Join(outDir, "index.html"))
	if err == nil && !info.IsDir() {
		return nil
	}
	return errors.New("E202").
		WithDetail(fmt.Sprintf("%s has no index.html.", outDir)).
		WithSuggestion("Run 'devpack build' first")
}

// Start binds the preview port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := CheckOutput(s.outDir); err != nil {
		s.markReady()
		return err
	}

	ln, err := listen.Listen(ctx, s.config.Preview.Host, s.config.Preview.Port, s.config.Preview.StrictPort)
	if err != nil {
		s.markReady()
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	urls := listen.ResolveURLs(s.config.Preview.Host, listen.Port(ln), s.config.BasePath())
	s.logger.Info("preview server running",
		slog.Any("local", urls.Local),
		slog.Any("network", urls.Network),
		slog.String("dir", s.outDir))
	s.markReady()
	if s.options.OnReady != nil {
		s.options.OnReady(urls)
	}

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Ready is closed once the server is listening, or once Start has failed.
// Addr is nil in the second case.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Addr returns the bound address, or nil before Start binds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// Handler returns the preview router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.metrics.Middleware("preview"))
	r.Handle("/*", s.proxy.Handler(http.HandlerFunc(s.serveFile)))
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// serveFile serves outDir and falls back to index.html for page
// navigations.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	base := s.config.BasePath()
	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, base) {
		if urlPath+"/" == base {
			http.Redirect(w, r, base, http.StatusFound)
			return
		}
		http.NotFound(w, r)
		return
	}
	rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(urlPath, base)), "/")

	if rel != "" && rel != "index.html" {
		file := filepath.Join(s.outDir, filepath.FromSlash(rel))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", CachePolicy(s.config.Build.AssetsDir, rel))
			serveContent(w, r, file)
			return
		}
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if ext := path.Ext(rel); ext != "" && ext != ".html" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", NoCache)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	serveContent(w, r, filepath.Join(s.outDir, "index.html"))
}

// serveContent serves file without http.ServeFile's index.html redirect.
func serveContent(w http.ResponseWriter, r *http.Request, file string) {
	f, err := os.Open(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// CachePolicy returns the Cache-Control value for a file at rel (slash
// separated, relative to outDir).
func CachePolicy(assetsDir, rel string) string {
	assetsDir = strings.Trim(path.Clean("/"+filepath.ToSlash(assetsDir)), "/")
	if assetsDir != "" && strings.HasPrefix(rel, assetsDir+"/") {
		return ImmutableCache
	}
	return NoCache
}
