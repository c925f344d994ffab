// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mapcanvas/viewcache/internal/contents"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/metrics"
)

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout"`

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit. Zero keeps the default of 5.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerOpenInterval is how long the circuit stays open before probing
	// again. Zero keeps the default of 30s.
	BreakerOpenInterval time.Duration `koanf:"breaker_open_interval"`
}

// DefaultHTTPConfig returns upstream client defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:                 15 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerOpenInterval:     30 * time.Second,
	}
}

// HTTPFetcher calls the upstream get-items endpoint over HTTP, shielded by
// a circuit breaker so a dead upstream fails fast instead of stacking
// timed-out requests behind every viewport settle.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[FetchResult]
}

// NewHTTPFetcher builds the upstream client.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openInterval := cfg.BreakerOpenInterval
	if openInterval <= 0 {
		openInterval = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "fetch-items",
		Timeout: openInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("fetch circuit breaker state change")
		},
	}

	return &HTTPFetcher{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[FetchResult](settings),
	}
}

// FetchItems implements Fetcher.
func (f *HTTPFetcher) FetchItems(ctx context.Context, req FetchRequest) (FetchResult, error) {
	start := time.Now()
	result, err := f.breaker.Execute(func() (FetchResult, error) {
		return f.doFetch(ctx, req)
	})
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Fetches.WithLabelValues("failure").Inc()
		if KindOf(err) == KindTransport {
			// Breaker-open and raw network errors arrive unclassified.
			return FetchResult{}, &Error{Kind: KindTransport, Err: err}
		}
		return FetchResult{}, err
	}
	metrics.Fetches.WithLabelValues("success").Inc()
	return result, nil
}

func (f *HTTPFetcher) doFetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("marshal fetch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/get-items", bytes.NewReader(body))
	if err != nil {
		return FetchResult{}, fmt.Errorf("build fetch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch items: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return FetchResult{}, err
	}

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return FetchResult{}, &Error{
			Kind:   KindTransport,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode fetch response: %w", err),
		}
	}
	return result, nil
}

// GetContents implements contents.Getter against the upstream get-contents
// endpoint. Contents hydration is user-initiated and low-volume, so it is
// not routed through the viewport fetch breaker.
func (f *HTTPFetcher) GetContents(ctx context.Context, queries []contents.Query) ([]contents.Content, error) {
	body, err := json.Marshal(map[string]interface{}{"queries": queries})
	if err != nil {
		return nil, fmt.Errorf("marshal content queries: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/get-contents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build contents request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get contents: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	var result struct {
		Contents []contents.Content `json:"contents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Error{
			Kind:   KindTransport,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode contents response: %w", err),
		}
	}
	return result.Contents, nil
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindSession, Status: status, Err: fmt.Errorf("upstream returned %d", status)}
	case status == http.StatusNotFound:
		return &Error{Kind: KindUnknownMap, Status: status, Err: fmt.Errorf("upstream returned %d", status)}
	default:
		return &Error{Kind: KindTransport, Status: status, Err: fmt.Errorf("upstream returned %d", status)}
	}
}
