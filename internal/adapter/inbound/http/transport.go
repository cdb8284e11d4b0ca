package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// HTTPTransport serves a Router over HTTP together with the health and
// metrics endpoints.
type HTTPTransport struct {
	router        *Router
	server        *http.Server
	addr          string
	certFile      string
	keyFile       string
	trustProxy    bool
	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithTrustProxy makes the transport take the caller address from
// X-Forwarded-For and X-Real-IP.
func WithTrustProxy(trust bool) Option {
	return func(t *HTTPTransport) {
		t.trustProxy = trust
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics served on /metrics. Without it the transport
// creates its own registry.
func WithMetrics(m *Metrics) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// NewHTTPTransport creates an HTTP transport serving router.
func NewHTTPTransport(router *Router, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		router: router,
		addr:   "127.0.0.1:8080",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(NewRegistry())
	}
	if t.healthChecker == nil {
		t.healthChecker = NewHealthChecker(router, nil, nil, "")
	}
	return t
}

// Handler builds the full HTTP handler.
// Middleware order (outermost first): Metrics, RequestID, RealIP, Router.
func (t *HTTPTransport) Handler() http.Handler {
	var rpcHandler http.Handler = t.router
	rpcHandler = RealIPMiddleware(t.trustProxy)(rpcHandler)
	rpcHandler = RequestIDMiddleware(t.logger)(rpcHandler)
	rpcHandler = MetricsMiddleware(t.metrics)(rpcHandler)

	mux := http.NewServeMux()
	mux.Handle("POST /rpc/{method}", rpcHandler)
	mux.Handle("GET /health", t.healthChecker.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(t.metrics.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (t *HTTPTransport) Serve(ctx context.Context, ln net.Listener) error {
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsEnabled := t.certFile != "" && t.keyFile != ""
	if tlsEnabled {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsEnabled {
			t.logger.Info("starting HTTPS server", "addr", ln.Addr().String())
			err = t.server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
			err = t.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}
