// Package rpc defines the request pipeline contract: the per-request context,
// the interceptor lifecycle and chain composition.
package rpc

import (
	"encoding/hex"
	"sync"
)

// Connection carries the transport metadata of the caller.
type Connection struct {
	// RemoteHost is the caller's address without port (e.g. "192.168.1.1").
	RemoteHost string

	// RemotePublicKey is the caller's stable identity, if the transport
	// authenticates one. Nil when unknown.
	RemotePublicKey []byte
}

// PublicKeyString returns the display encoding of RemotePublicKey
// (lowercase hex), or "" when no key is known.
func (c Connection) PublicKeyString() string {
	if len(c.RemotePublicKey) == 0 {
		return ""
	}
	return hex.EncodeToString(c.RemotePublicKey)
}

// Request is the context of one inbound RPC call as seen by interceptors.
type Request struct {
	// ID is a stable per-request identifier.
	ID string

	// Method is the requested RPC method name.
	Method string

	// Connection is the transport metadata used for key extraction.
	Connection Connection

	// Payload is the raw request body. Interceptors treat it as opaque.
	Payload []byte

	mu          sync.Mutex
	annotations map[any]any
}

// NewRequest creates a Request for the given method.
func NewRequest(id, method string, conn Connection, payload []byte) *Request {
	return &Request{
		ID:         id,
		Method:     method,
		Connection: conn,
		Payload:    payload,
	}
}

// Annotate attaches a value to the request under key. Interceptors use
// annotations to signal each other (for example to suppress logging for a
// single call). Keys should be unexported types to avoid collisions.
func (r *Request) Annotate(key, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.annotations == nil {
		r.annotations = make(map[any]any)
	}
	r.annotations[key] = value
}

// Annotation returns the value stored under key.
func (r *Request) Annotation(key any) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.annotations[key]
	return v, ok
}
