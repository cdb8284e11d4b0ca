// Package client calls methods served by an rpcguard server.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client calls rpcguard methods over HTTP. It is safe for concurrent use.
type Client struct {
	serverAddr string
	publicKey  []byte
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. It reads RPCGUARD_SERVER_ADDR,
// RPCGUARD_PUBLIC_KEY (hex) and RPCGUARD_CLIENT_TIMEOUT by default.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: envOrDefault("RPCGUARD_SERVER_ADDR", "http://127.0.0.1:8080"),
		publicKey:  parseHexEnv("RPCGUARD_PUBLIC_KEY"),
		timeout:    parseDurationEnv("RPCGUARD_CLIENT_TIMEOUT", 5*time.Second),
		backoff:    100 * time.Millisecond,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call invokes method with params encoded as the JSON body and decodes the
// result into result. params and result may be nil. Limiter rejections are
// returned as *CallError and retried when WithRetries is set.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var body []byte
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		body = b
	}

	expBackoff := backoff.ExponentialBackOff{
		InitialInterval:     c.backoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         backoff.DefaultMaxInterval,
		Clock:               backoff.SystemClock,
	}
	expBackoff.Reset()

	for attempt := 0; ; attempt++ {
		err := c.call(ctx, method, body, result)
		var callErr *CallError
		if err == nil || !errors.As(err, &callErr) || !callErr.Retryable() || attempt >= c.maxRetries {
			return err
		}

		delay := expBackoff.NextBackOff()
		c.logger.Warn("rpcguard call rejected, retrying",
			"method", method,
			"code", callErr.Code,
			"attempt", attempt+1,
			"backoff", delay,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (c *Client) call(ctx context.Context, method string, body []byte, result any) error {
	endpoint := strings.TrimRight(c.serverAddr, "/") + "/rpc/" + url.PathEscape(method)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if len(c.publicKey) > 0 {
		httpReq.Header.Set("X-Remote-Public-Key", hex.EncodeToString(c.publicKey))
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		callErr := &CallError{
			Method:    method,
			Status:    httpResp.StatusCode,
			Code:      fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Message:   strings.TrimSpace(string(respBody)),
			RequestID: httpResp.Header.Get("X-Request-ID"),
		}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			callErr.Code = env.Error.Code
			callErr.Message = env.Error.Message
		}
		return callErr
	}

	if result == nil {
		return nil
	}
	var env resultEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// Ping calls the built-in ping method.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.Call(ctx, "ping", nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("unexpected ping result %q", pong)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Plain integers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func parseHexEnv(key string) []byte {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil
	}
	return b
}
