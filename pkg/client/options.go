package client

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the server base URL, e.g. "http://127.0.0.1:8080".
// If not set, defaults to the RPCGUARD_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithPublicKey sets the public key sent in X-Remote-Public-Key. Servers
// keyed by public_key count calls against this key.
func WithPublicKey(key []byte) Option {
	return func(c *Client) {
		c.publicKey = key
	}
}

// WithTimeout sets the HTTP request timeout. Defaults to 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries retries calls rejected by a limiter up to n times with
// jittered exponential backoff starting at backoff.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
