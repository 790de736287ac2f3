// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
)

const (
	terminalsPath    = "/iclock/api/terminals/"
	transactionsPath = "/iclock/api/transactions/"
	tokenAuthPath    = "/jwt-api-token-auth/"

	// maxErrorBodySize bounds how much of an error body is kept for logs.
	maxErrorBodySize = 64 * 1024

	// timeLayout is the naive timestamp format used by the service.
	timeLayout = "2006-01-02 15:04:05"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	Username          string
	Password          string
	PageSize          int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	FetchRetries      int
	Location          *time.Location

	// RetryBaseDelay is the first backoff between page retries. Doubles per attempt.
	RetryBaseDelay time.Duration

	// BreakerTimeout is how long the breaker stays open. Defaults to 2 minutes.
	BreakerTimeout time.Duration

	// HTTPClient overrides the default client. Its Timeout is left as set.
	HTTPClient *http.Client
}

// Client talks to one BioTime server.
type Client struct {
	baseURL        string
	username       string
	password       string
	pageSize       int
	fetchRetries   int
	retryBaseDelay time.Duration
	loc            *time.Location

	http    *http.Client
	limiter *rate.Limiter
	breaker *breaker
}

// NewClient creates a client from cfg, filling in defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.FetchRetries < 1 {
		cfg.FetchRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 2 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		username:       cfg.Username,
		password:       cfg.Password,
		pageSize:       cfg.PageSize,
		fetchRetries:   cfg.FetchRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		loc:            cfg.Location,
		http:           httpClient,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:        newBreaker("biotime-api", cfg.BreakerTimeout),
	}
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Location returns the zone used for naive service timestamps.
func (c *Client) Location() *time.Location {
	return c.loc
}

// BreakerOpen reports whether the circuit breaker is currently rejecting calls.
func (c *Client) BreakerOpen() bool {
	return c.breaker.open()
}

// FormatTime renders t in the service's naive timestamp format.
func (c *Client) FormatTime(t time.Time) string {
	return t.In(c.loc).Format(timeLayout)
}

// ParseTime parses a naive service timestamp in the configured zone.
func (c *Client) ParseTime(s string) (time.Time, error) {
	return ParseTime(s, c.loc)
}

// ParseTime parses a BioTime punch_time or last_activity value. Both the
// naive "2006-01-02 15:04:05" form and RFC 3339 are accepted.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(timeLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t, nil
}

// send performs one HTTP exchange under the rate limiter and breaker. A
// returned response always has a status below 500 and other than 429; the
// caller owns its body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, token string, payload any) (*http.Response, error) {
	endpoint := strings.Trim(path, "/")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, &APIError{Kind: ErrFatal, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "JWT "+token)
	}

	return c.breaker.execute(endpoint, func() (*http.Response, error) {
		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.RecordRemoteRequest(endpoint, 0, time.Since(start))
			return nil, transportError(ctx, endpoint, err)
		}
		metrics.RecordRemoteRequest(endpoint, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			apiErr := statusError(endpoint, resp.StatusCode, readBodyForError(resp.Body))
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			closeBody(resp)
			return nil, apiErr
		}
		return resp, nil
	})
}

// decodeJSON decodes a 200 body into out. Decode failures are
// ErrMalformedResponse.
func decodeJSON(resp *http.Response, endpoint string, out any) error {
	defer closeBody(resp)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformedError(endpoint, err)
	}
	return nil
}

// checkStatus returns nil for 200 and closes the body otherwise.
func checkStatus(resp *http.Response, endpoint string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	err := statusError(endpoint, resp.StatusCode, readBodyForError(resp.Body))
	closeBody(resp)
	return err
}

// retryDelay is the backoff before attempt n (0-based) of a retried call.
func (c *Client) retryDelay(attempt int, err error) time.Duration {
	delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		delay = apiErr.RetryAfter
	}
	return delay
}

// withRetries runs fn until it succeeds, fails non-transiently, or the
// retry budget is spent.
func (c *Client) withRetries(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.fetchRetries; attempt++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == c.fetchRetries-1 {
			break
		}
		delay := c.retryDelay(attempt, err)
		logging.Ctx(ctx).Warn().Err(err).Str("request", what).Int("attempt", attempt+1).Dur("backoff", delay).Msg("Transient BioTime failure, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", what, c.fetchRetries, err)
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return bytes.TrimSpace(body)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	_ = resp.Body.Close()
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
