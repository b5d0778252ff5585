// Package proxy forwards dev and preview requests to backend targets.
//
// Rules are keyed by a literal path prefix or by a regular expression
// starting with ^. Literal prefixes are matched longest first; patterns are
// tried afterwards in sorted order. The request path is preserved unless a
// rule rewrites it.
package proxy

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
)

const tracerName = "devpack/proxy"

type options struct {
	allowInsecure bool
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	transport     *http.Transport
}

// Option configures New.
type Option func(*options)

// WithAllowInsecure lets rules with insecureSkipVerify disable upstream
// certificate verification. Without it every rule verifies certificates.
func WithAllowInsecure(allow bool) Option {
	return func(o *options) {
		o.allowInsecure = allow
	}
}

// WithLogger sets the logger for proxy errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records proxied requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerName sets the name of the tracer spans are created with.
func WithTracerName(name string) Option {
	return func(o *options) {
		o.tracer = otel.Tracer(name)
	}
}

// WithTransport sets the base transport cloned for every route.
func WithTransport(t *http.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// Route is one compiled proxy rule.
type Route struct {
	Key    string
	Rule   config.ProxyRule
	Target *url.URL

	pattern  *regexp.Regexp
	rewrites []rewrite
	proxy    *httputil.ReverseProxy
}

type rewrite struct {
	re          *regexp.Regexp
	replacement string
}

// Proxy dispatches requests to the first matching route.
type Proxy struct {
	routes  []*Route
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type failureKey struct{}

// New compiles rules into routes.
func New(rules map[string]config.ProxyRule, opts ...Option) (*Proxy, error) {
	if err := config.ValidateProxy("proxy", rules); err != nil {
		return nil, err
	}

	o := options{tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Proxy{
		logger:  logging.OrDefault(o.logger),
		metrics: o.metrics,
		tracer:  o.tracer,
	}

	for _, key := range orderKeys(rules) {
		route, err := p.compile(key, rules[key], o)
		if err != nil {
			return nil, err
		}
		p.routes = append(p.routes, route)
	}
	return p, nil
}

// orderKeys returns literal prefixes longest first, then patterns sorted.
func orderKeys(rules map[string]config.ProxyRule) []string {
	var literals, patterns []string
	for key := range rules {
		if strings.HasPrefix(key, "^") {
			patterns = append(patterns, key)
		} else {
			literals = append(literals, key)
		}
	}
	sort.Slice(literals, func(i, j int) bool {
		if len(literals[i]) != len(literals[j]) {
			return len(literals[i]) > len(literals[j])
		}
		return literals[i] < literals[j]
	})
	sort.Strings(patterns)
	return append(literals, patterns...)
}

func (p *Proxy) compile(key string, rule config.ProxyRule, o options) (*Route, error) {
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, err
	}
	switch target.Scheme {
	case "ws":
		target.Scheme = "http"
	case "wss":
		target.Scheme = "https"
	}

	route := &Route{Key: key, Rule: rule, Target: target}
	if strings.HasPrefix(key, "^") {
		route.pattern = regexp.MustCompile(key)
	}
	for _, rw := range rule.Rewrite {
		route.rewrites = append(route.rewrites, rewrite{
			re:          regexp.MustCompile(rw.Pattern),
			replacement: rw.Replacement,
		})
	}

	var transport *http.Transport
	if o.transport != nil {
		transport = o.transport.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if rule.InsecureSkipVerify {
		if o.allowInsecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}
			transport.TLSClientConfig.InsecureSkipVerify = true
		} else {
			p.logger.Warn("proxy rule asks to skip certificate verification; verifying anyway",
				slog.String("route", key),
				slog.String("target", rule.Target),
			)
		}
	}

	route.proxy = &httputil.ReverseProxy{
		Rewrite:   route.rewriteRequest,
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if failed, ok := r.Context().Value(failureKey{}).(*error); ok {
				*failed = err
			}
			perr := errors.New("E203").Wrap(err)
			p.logger.Error(perr.Message,
				slog.String("code", perr.Code),
				slog.String("route", key),
				slog.String("target", rule.Target),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("proxy error: " + rule.Target + " is unreachable\n"))
		},
	}
	return route, nil
}

// Matches reports whether path is handled by the route.
func (rt *Route) Matches(path string) bool {
	if rt.pattern != nil {
		return rt.pattern.MatchString(path)
	}
	return strings.HasPrefix(path, rt.Key)
}

// RewritePath applies the route's rewrite rules to path.
func (rt *Route) RewritePath(path string) string {
	for _, rw := range rt.rewrites {
		path = rw.re.ReplaceAllString(path, rw.replacement)
	}
	return path
}

func (rt *Route) rewriteRequest(pr *httputil.ProxyRequest) {
	pr.Out.URL.Path = rt.RewritePath(pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetURL(rt.Target)
	pr.SetXForwarded()

	if rt.Rule.ChangeOrigin {
		if pr.Out.Header.Get("Origin") != "" {
			pr.Out.Header.Set("Origin", rt.Target.Scheme+"://"+rt.Target.Host)
		}
	} else {
		pr.Out.Host = pr.In.Host
	}

	otel.GetTextMapPropagator().Inject(pr.Out.Context(), propagation.HeaderCarrier(pr.Out.Header))
}

// Match returns the route handling path, or nil.
func (p *Proxy) Match(path string) *Route {
	for _, rt := range p.routes {
		if rt.Matches(path) {
			return rt
		}
	}
	return nil
}

// Routes returns the routes in match order.
func (p *Proxy) Routes() []*Route {
	return p.routes
}

// Handler forwards matching requests and passes the rest to next.
func (p *Proxy) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt := p.Match(r.URL.Path)
		if rt == nil {
			next.ServeHTTP(w, r)
			return
		}
		p.forward(rt, w, r)
	})
}

// ServeHTTP forwards r, answering 404 when no route matches.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.Handler(http.NotFoundHandler()).ServeHTTP(w, r)
}

func (p *Proxy) forward(rt *Route, w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, span := p.tracer.Start(r.Context(), "proxy "+rt.Key,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("devpack.proxy.route", rt.Key),
			attribute.String("devpack.proxy.target", rt.Rule.Target),
		),
	)
	defer span.End()

	var failed error
	ctx = context.WithValue(ctx, failureKey{}, &failed)

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	rt.proxy.ServeHTTP(ww, r.WithContext(ctx))

	status := ww.Status()
	if failed != nil {
		span.RecordError(failed)
		span.SetStatus(codes.Error, "upstream unreachable")
		p.metrics.RecordProxy(rt.Key, 0, time.Since(start))
		return
	}
	switch {
	case status == 0 && r.Header.Get("Upgrade") != "":
		status = http.StatusSwitchingProtocols
	case status == 0:
		status = http.StatusOK
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	p.metrics.RecordProxy(rt.Key, status, time.Since(start))
}
