package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/concurrency"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
)

// HeaderRemotePublicKey carries the caller's public key, hex encoded.
const HeaderRemotePublicKey = "X-Remote-Public-Key"

// maxBodyBytes bounds the payload of a single call.
const maxBodyBytes = 1 << 20

// Error codes produced by the router itself.
const (
	CodeBadRequest = "BAD_REQUEST"
)

// ErrRouterClosed is returned by Register and Open after Close.
var ErrRouterClosed = errors.New("router closed")

type route struct {
	handler rpc.Handler
	chain   *rpc.Chain
}

// Router dispatches calls to registered methods. Every call passes through
// the router-wide interceptor first, then through the method's own chain.
type Router struct {
	global rpc.Interceptor
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
	opened bool
	closed atomic.Bool
}

// NewRouter creates a router. global may be nil.
func NewRouter(global rpc.Interceptor, logger *slog.Logger) *Router {
	if global == nil {
		global = rpc.Compose()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		global: global,
		logger: logger,
		routes: make(map[string]route),
	}
}

// Register adds a method with optional method-level interceptors. Methods
// must be registered before Open.
func (r *Router) Register(method string, handler rpc.Handler, interceptors ...rpc.Interceptor) error {
	if method == "" || handler == nil {
		return errors.New("method name and handler are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrRouterClosed
	}
	if r.opened {
		return fmt.Errorf("register %q: router already open", method)
	}
	if _, exists := r.routes[method]; exists {
		return fmt.Errorf("method %q already registered", method)
	}
	r.routes[method] = route{handler: handler, chain: rpc.Compose(interceptors...)}
	return nil
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the router-wide interceptor and then every method chain. On
// failure everything opened so far is closed again.
func (r *Router) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrRouterClosed
	}
	if r.opened {
		return errors.New("router already open")
	}

	if err := r.global.Open(ctx); err != nil {
		return fmt.Errorf("open router interceptors: %w", err)
	}
	var opened []*rpc.Chain
	for name, rt := range r.routes {
		if err := rt.chain.Open(ctx); err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			_ = r.global.Close()
			return fmt.Errorf("open method %q: %w", name, err)
		}
		opened = append(opened, rt.chain)
	}
	r.opened = true
	r.logger.Info("rpc router opened", "methods", len(r.routes))
	return nil
}

// Close closes every method chain, then the router-wide interceptor.
// A second call returns ErrRouterClosed.
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrRouterClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, rt := range r.routes {
		if err := rt.chain.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close method %q: %w", name, err))
		}
	}
	if err := r.global.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close router interceptors: %w", err))
	}
	return errors.Join(errs...)
}

// Closed reports whether Close has been called.
func (r *Router) Closed() bool {
	return r.closed.Load()
}

// Call runs method for req through the router-wide and method chains.
// Unknown methods fail with rpc.ErrMethodNotFound without entering any chain.
func (r *Router) Call(ctx context.Context, req *rpc.Request) (any, error) {
	r.mu.RLock()
	rt, ok := r.routes[req.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, rpc.ErrMethodNotFound
	}

	return r.global.Intercept(ctx, req, func(ctx context.Context) (any, error) {
		return rt.chain.Handle(ctx, req, rt.handler)
	})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type resultResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// ServeHTTP handles POST /rpc/{method}.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := LoggerFromContext(ctx)

	method := req.PathValue("method")

	var publicKey []byte
	if raw := req.Header.Get(HeaderRemotePublicKey); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: errorBody{
				Code:    CodeBadRequest,
				Message: "invalid " + HeaderRemotePublicKey + " header",
			}})
			return
		}
		publicKey = decoded
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, logger, http.StatusRequestEntityTooLarge, errorResponse{Error: errorBody{
			Code:    CodeBadRequest,
			Message: "request body too large",
		}})
		return
	}

	call := rpc.NewRequest(
		RequestIDFromContext(ctx),
		method,
		rpc.Connection{RemoteHost: RemoteHostFromContext(ctx), RemotePublicKey: publicKey},
		payload,
	)

	result, err := r.Call(ctx, call)
	if err != nil {
		status := StatusForError(err)
		if status == http.StatusInternalServerError {
			logger.Error("rpc handler failed", "method", method, "error", err)
		}
		writeJSON(w, logger, status, errorResponse{Error: errorBody{
			Code:    rpc.ErrorCode(err),
			Message: err.Error(),
		}})
		return
	}

	writeJSON(w, logger, http.StatusOK, resultResponse{Result: result})
}

// StatusForError maps an RPC error to an HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimitExceeded),
		errors.Is(err, concurrency.ErrConcurrentLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ratelimit.ErrDestroyed),
		errors.Is(err, concurrency.ErrDestroyed):
		return http.StatusServiceUnavailable
	case errors.Is(err, rpc.ErrMethodNotFound):
		return http.StatusNotFound
	case rpc.ErrorCode(err) == CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
