package dev

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
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
	"github.com/go-chi/cors"

	"github.com/vango-dev/devpack/internal/build"
	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/listen"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
	"github.com/vango-dev/devpack/internal/proxy"
)

// MetricsPath serves the dev server's Prometheus metrics.
const MetricsPath = "/__devpack/metrics"

// changeQueueSize bounds the changes waiting for processChanges.
const changeQueueSize = 64

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Logger receives server logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records server metrics. May be nil.
	Metrics *metrics.Metrics

	// Environ supplies the environment exposed to client code.
	Environ func() []string

	// OnReady is called once the server is listening.
	OnReady func(urls listen.URLs)

	// OnBuildStart is called when a build starts.
	OnBuildStart func()

	// OnBuildComplete is called when a build completes.
	OnBuildComplete func(result BuildResult)

	// OnReload is called when browsers are reloaded.
	OnReload func(clients int)
}

// Server is the development server.
type Server struct {
	config       *config.Config
	options      ServerOptions
	logger       *slog.Logger
	metrics      *metrics.Metrics
	compiler     *Compiler
	watcher      Watcher
	reloadServer *ReloadServer
	proxy        *proxy.Proxy
	changeCh     chan Change
	httpServer   *http.Server
	listener     net.Listener
	ready        chan struct{}
	readyOnce    sync.Once
	mu           sync.Mutex
	running      bool
	stopOnce     sync.Once
}

// NewServer creates a new development server.
func NewServer(options ServerOptions) (*Server, error) {
	cfg := options.Config
	logger := logging.OrDefault(options.Logger)

	builder, err := build.New(cfg, build.Options{Logger: logger, Environ: options.Environ})
	if err != nil {
		return nil, err
	}
	compiler, err := NewCompiler(context.Background(), builder)
	if err != nil {
		return nil, err
	}

	px, err := proxy.New(cfg.Server.Proxy,
		proxy.WithAllowInsecure(true),
		proxy.WithLogger(logger),
		proxy.WithMetrics(options.Metrics),
	)
	if err != nil {
		return nil, err
	}

	watcher := NewWatcher(WatcherConfig{
		Paths:      CollectWatchPaths(cfg),
		Ignore:     CollectIgnore(cfg),
		Interval:   cfg.Server.Watch.PollInterval(),
		UsePolling: cfg.Server.Watch.UsePolling,
		PublicDir:  cfg.PublicPath(),
		ConfigFile: cfg.File(),
	})

	var reloadServer *ReloadServer
	if cfg.Server.HMR {
		reloadServer = NewReloadServer(logger, options.Metrics)
	}

	return &Server{
		config:       cfg,
		options:      options,
		logger:       logger,
		metrics:      options.Metrics,
		compiler:     compiler,
		watcher:      watcher,
		reloadServer: reloadServer,
		proxy:        px,
		changeCh:     make(chan Change, changeQueueSize),
		ready:        make(chan struct{}),
	}, nil
}

// Start binds the port, builds, and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	// Bind first so a taken port fails before any work is done.
	ln, err := listen.Listen(ctx, s.config.Server.Host, s.config.Server.Port, s.config.Server.StrictPort)
	if err != nil {
		s.markReady()
		s.Stop()
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	// Initial build
	s.runBuild(ctx)

	s.watcher.OnChange(func(change Change) {
		s.enqueue(ctx, change)
	})

	go func() {
		if err := s.watcher.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("watcher stopped", slog.Any("error", err))
		}
	}()
	go s.processChanges(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	urls := listen.ResolveURLs(s.config.Server.Host, listen.Port(ln), s.config.BasePath())
	s.logger.Info("dev server running",
		slog.Any("local", urls.Local),
		slog.Any("network", urls.Network))
	s.markReady()
	if s.options.OnReady != nil {
		s.options.OnReady(urls)
	}
	if s.config.Server.Open {
		if err := OpenBrowser(urls.Primary()); err != nil {
			s.logger.Warn("could not open browser", slog.Any("error", err))
		}
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

// Ready is closed once the server is listening, or once Start has failed
// to bind. Addr is nil in the second case.
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

// Stop shuts down the HTTP server, watcher, bundler and live-reload
// clients. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		httpServer := s.httpServer
		ln := s.listener
		s.mu.Unlock()

		s.watcher.Stop()
		if s.reloadServer != nil {
			s.reloadServer.Close()
		}
		if httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		} else if ln != nil {
			ln.Close()
		}
		s.compiler.Stop()
	})
}

// Handler returns the dev server's router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.metrics.Middleware("dev"))
	if s.config.Server.CORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	if s.reloadServer != nil {
		r.Get(ReloadPath, s.reloadServer.HandleWebSocket)
	}
	r.Handle(MetricsPath, s.metrics.Handler())
	r.Handle("/*", s.proxy.Handler(http.HandlerFunc(s.serveAsset)))
	return r
}

// requestLogger is a chi middleware that logs each incoming request.
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

// serveAsset serves bundle outputs, then public files, then project files,
// and falls back to index.html for page navigations.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	base := s.config.BasePath()
	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, base) {
		if urlPath+"/" == base {
			http.Redirect(w, r, base, http.StatusFound)
			return
		}
		http.Error(w, fmt.Sprintf("%s is outside the public base path %s", urlPath, base), http.StatusNotFound)
		return
	}
	rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(urlPath, base)), "/")

	if bundle := s.compiler.Bundle(); bundle != nil && rel != "" {
		if data, ok := bundle.Files[rel]; ok {
			if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeContent(w, r, rel, time.Time{}, bytes.NewReader(data))
			return
		}
	}

	if rel != "" && rel != "index.html" {
		for _, dir := range []string{s.config.PublicPath(), s.config.RootPath()} {
			file := filepath.Join(dir, filepath.FromSlash(rel))
			if isFile(file) && !s.hidden(file) {
				w.Header().Set("Cache-Control", "no-cache")
				http.ServeFile(w, r, file)
				return
			}
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
	s.serveIndex(w, r)
}

// hidden reports whether file must not be served from the project root.
func (s *Server) hidden(file string) bool {
	if isWithinDir(file, s.config.OutputPath()) {
		return true
	}
	rel, err := filepath.Rel(s.config.RootPath(), file)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") || part == "node_modules" {
			return true
		}
	}
	return false
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>devpack</title></head>
<body style="font-family: system-ui; padding: 40px; background: #1a1a1a; color: #fff;">
<h1 style="color: #ff5555;">Build failed</h1>
<pre style="white-space: pre-wrap;">{{.}}</pre>
<p style="color: #888;">The page will reload when the build succeeds.</p>
</body>
</html>
`))

// serveIndex serves the rewritten index.html with the live-reload client.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	bundle := s.compiler.Bundle()
	if bundle == nil {
		var page strings.Builder
		msg := "no build yet"
		if err := s.compiler.Err(); err != nil {
			msg = formatBuildError(err)
		}
		_ = errorPage.Execute(&page, msg)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(s.inject([]byte(page.String())))
		return
	}
	_, _ = w.Write(s.inject(bundle.HTML))
}

func (s *Server) inject(doc []byte) []byte {
	if s.reloadServer == nil {
		return doc
	}
	return build.InjectBeforeBody(doc, DevClientScript)
}

// runBuild rebuilds and reports the outcome. It returns true on success.
func (s *Server) runBuild(ctx context.Context) bool {
	if s.options.OnBuildStart != nil {
		s.options.OnBuildStart()
	}

	result := s.compiler.Build(ctx)
	s.metrics.RecordRebuild(result.Success, result.Duration)

	if s.options.OnBuildComplete != nil {
		s.options.OnBuildComplete(result)
	}
	if !result.Success {
		s.logger.Error("build failed", slog.String("error", result.Output))
		s.notifyError(result.Output)
		return false
	}
	s.logger.Info("built", slog.Duration("duration", result.Duration.Round(time.Millisecond)))
	return true
}

// enqueue hands change to processChanges. When the queue is full it waits
// for room rather than dropping the change, and gives up once ctx is done.
func (s *Server) enqueue(ctx context.Context, change Change) bool {
	select {
	case s.changeCh <- change:
		return true
	case <-ctx.Done():
		return false
	}
}

// processChanges serializes file change handling and coalesces bursts.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-s.changeCh:
			changes := []Change{change}
			draining := true
			for draining {
				select {
				case next := <-s.changeCh:
					changes = append(changes, next)
				case <-time.After(s.config.Server.Watch.PollInterval() / 2):
					draining = false
				}
			}
			s.handleChanges(ctx, changes)
		}
	}
}

// handleChanges handles a batch of file changes.
func (s *Server) handleChanges(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}

	hasScript := false
	hasStyle := false
	hasHTML := false
	hasPublic := false
	hasAsset := false
	var stylePath string

	for _, change := range changes {
		s.logger.Info("changed", slog.String("path", change.Path), slog.String("kind", change.Type.String()))
		s.metrics.RecordWatchEvent(change.Type.String())
		switch change.Type {
		case ChangeScript:
			hasScript = true
		case ChangeStyle:
			hasStyle = true
			if stylePath == "" {
				stylePath = change.Path
			}
		case ChangeHTML:
			hasHTML = true
		case ChangePublic:
			hasPublic = true
		case ChangeConfig:
			s.logger.Warn("config file changed; restart devpack to apply it", slog.String("path", change.Path))
		default:
			hasAsset = true
		}
	}

	if !hasScript && !hasStyle && !hasHTML && !hasAsset {
		if hasPublic {
			s.notifyReload()
		}
		return
	}

	if hasHTML {
		s.compiler.Reset()
	}
	if !s.runBuild(ctx) {
		return
	}

	if hasStyle && !hasScript && !hasHTML && !hasAsset && !hasPublic {
		s.notifyCSS(stylePath)
		return
	}
	s.notifyReload()
}

func (s *Server) notifyReload() {
	if s.reloadServer == nil {
		s.logger.Info("hot reload disabled; rebuild complete")
		return
	}

	s.reloadServer.NotifyReload()
	if s.options.OnReload != nil {
		s.options.OnReload(s.reloadServer.ClientCount())
	}
	s.logger.Info("reloaded browsers", slog.Int("clients", s.reloadServer.ClientCount()))
}

func (s *Server) notifyCSS(file string) {
	if s.reloadServer == nil {
		return
	}
	if rel, err := filepath.Rel(s.config.RootPath(), file); err == nil {
		file = filepath.ToSlash(rel)
	}
	s.reloadServer.NotifyCSS(file)
	if s.options.OnReload != nil {
		s.options.OnReload(s.reloadServer.ClientCount())
	}
	s.logger.Info("css reloaded", slog.String("file", file))
}

func (s *Server) notifyError(errMsg string) {
	if s.reloadServer == nil {
		return
	}
	s.reloadServer.NotifyError(errMsg)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isWithinDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	absDir = filepath.Clean(absDir)
	if absPath == absDir {
		return true
	}
	if !strings.HasSuffix(absDir, string(os.PathSeparator)) {
		absDir += string(os.PathSeparator)
	}
	return strings.HasPrefix(absPath, absDir)
}

func isSamePath(a, b string) bool {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return filepath.Clean(absA) == filepath.Clean(absB)
}
