// Package http exposes an RPC router over HTTP.
//
// # Endpoints
//
//	POST /rpc/{method}  - Call a registered method. The body is the raw payload.
//	GET  /health        - Component health as JSON.
//	GET  /metrics       - Prometheus metrics.
//
// # Request Headers
//
//	X-Request-ID: <id>               - Request identifier, generated when absent
//	X-Remote-Public-Key: <hex>       - Caller identity used by public-key limits
//	X-Forwarded-For / X-Real-IP      - Caller address when behind a reverse proxy
//
// # Responses
//
// A successful call returns 200 with {"result": ...}. A failed call returns
// {"error": {"code": ..., "message": ...}} with the status derived from the
// error:
//
//	RATE_LIMIT_EXCEEDED, CONCURRENT_LIMIT_EXCEEDED          429
//	RATE_LIMIT_MIDDLEWARE_DESTROYED,
//	CONCURRENT_LIMIT_MIDDLEWARE_DESTROYED                   503
//	METHOD_NOT_FOUND                                        404
//	BAD_REQUEST                                             400
//	anything else                                           500
//
// # Middleware Chain
//
// Requests pass through HTTP middleware in this order before reaching the
// router's interceptor chain:
//
//  1. MetricsMiddleware - Records duration and status
//  2. RequestIDMiddleware - Extracts or generates the request ID
//  3. RealIPMiddleware - Extracts the caller address
//  4. Router - Builds the rpc.Request and runs the interceptor chain
package http
