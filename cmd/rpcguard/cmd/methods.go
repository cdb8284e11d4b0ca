package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/rpcguard/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
	"github.com/Sentinel-Gate/rpcguard/internal/service"
)

// registerMethods adds the built-in methods to router.
//
//	ping   returns "pong" and is never logged
//	echo   returns the request body
//	stats  returns admission counters
//	events returns the most recent admission events, when the store keeps them
func registerMethods(router *http.Router, stats *service.StatsService, recent recentEvents) error {
	if err := router.Register("ping", ping, interceptor.SkipLogging()); err != nil {
		return fmt.Errorf("register ping: %w", err)
	}
	if err := router.Register("echo", echo); err != nil {
		return fmt.Errorf("register echo: %w", err)
	}
	if err := router.Register("stats", func(context.Context, *rpc.Request) (any, error) {
		return stats.GetStats(), nil
	}); err != nil {
		return fmt.Errorf("register stats: %w", err)
	}
	if recent != nil {
		if err := router.Register("events", func(_ context.Context, req *rpc.Request) (any, error) {
			return recentEventsResult(recent, req.Payload)
		}); err != nil {
			return fmt.Errorf("register events: %w", err)
		}
	}
	return nil
}

// recentEvents is implemented by event stores that keep a recent window.
type recentEvents interface {
	GetRecent(n int) []admission.Event
}

const (
	defaultRecentEvents = 50
	maxRecentEvents     = 1000
)

// recentEventsResult decodes an optional {"limit": n} body.
func recentEventsResult(recent recentEvents, payload []byte) ([]admission.Event, error) {
	params := struct {
		Limit int `json:"limit"`
	}{Limit: defaultRecentEvents}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, rpc.NewCodedError(http.CodeBadRequest, "invalid events request: "+err.Error())
		}
	}
	if params.Limit <= 0 {
		params.Limit = defaultRecentEvents
	}
	if params.Limit > maxRecentEvents {
		params.Limit = maxRecentEvents
	}
	events := recent.GetRecent(params.Limit)
	if events == nil {
		events = []admission.Event{}
	}
	return events, nil
}

func ping(context.Context, *rpc.Request) (any, error) {
	return "pong", nil
}

// echo returns JSON bodies unchanged and anything else as a string.
func echo(_ context.Context, req *rpc.Request) (any, error) {
	if len(req.Payload) == 0 {
		return nil, nil
	}
	if json.Valid(req.Payload) {
		return json.RawMessage(req.Payload), nil
	}
	return string(req.Payload), nil
}
