package eduwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize bounds how much of a response body is read and cached.
const maxResponseSize = 10 * 1024 * 1024

// Client is the resilient request orchestrator mediating every call between
// the admin UI and the backend API. It layers in-flight coalescing, response
// caching, circuit breaking, retries with backoff, and token refresh around
// the standard net/http client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   BackoffStrategy
	retryPolicy       RetryPolicy

	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter

	cache          Cache
	cacheTTL       time.Duration
	cacheCondition CacheCondition

	inflight          *inflightTable
	coalesceCondition CoalesceCondition

	credStore      CredentialStore
	refresher      *refreshCoordinator
	refreshTimeout time.Duration

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// callState carries the per-call context across retry attempts. The attempt
// counter and refresh flag are scoped to one logical call and never shared.
type callState struct {
	req       *Request
	body      []byte
	endpoint  string
	creds     Credentials
	requestID string
	start     time.Time
	refreshed bool
	noRefresh bool
}

// New constructs a Client for the given API base URL using the provided
// functional options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:           strings.TrimRight(baseURL, "/"),
		maxRetries:        3,
		initialBackoff:    time.Second,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		backoffStrategy:   ExponentialJitter,
		circuitBreaker:    NewCircuitBreaker(CircuitBreakerConfig{}),
		cache:             NewInMemoryCache(),
		cacheTTL:          0,
		cacheCondition:    DefaultCacheCondition,
		inflight:          newInflightTable(),
		coalesceCondition: DefaultCoalesceCondition,
		credStore:         NewMemoryCredentialStore(),
		refreshTimeout:    10 * time.Second,
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewRetryPolicy(client.maxRetries, client.initialBackoff, client.maxBackoff, client.backoffMultiplier, client.jitter, client.backoffStrategy)
	}
	client.refresher = newRefreshCoordinator(client, client.refreshTimeout)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Execute runs one logical call through the full orchestration pipeline:
// coalescing, credential reload, cache lookup, circuit breaker gate, the
// retried network call, refresh-and-retry on 401, and cache store. Every
// ordinary failure is returned as a *ClientError, never a panic.
func (c *Client) Execute(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	endpoint := endpointForPath(req.Path)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "path", req.Path)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	if c.coalesceCondition != nil && c.coalesceCondition(req) {
		key, idErr := requestIdentity(req)
		if idErr != nil {
			return nil, c.terminalError(&callState{req: req, endpoint: endpoint, requestID: requestID, start: start}, ErrorTypeUnknown, "request body is not serializable", idErr, 0, 0, false)
		}

		entry, owner := c.inflight.getOrCreate(key)
		if !owner {
			c.metrics.RecordCoalesceHit(req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Debug("Coalesced onto in-flight request", "requestID", requestID, "key", key)
			}
			resp, err = entry.Wait(ctx)
			c.recordOutcome(req.Method, endpoint, resp, start)
			return resp, err
		}

		// Remove the in-flight entry exactly once, whatever exit path the
		// owning call takes.
		defer func() {
			c.inflight.settle(key, entry, resp, err)
		}()
	}

	resp, err = c.executeOwned(ctx, req, endpoint, requestID, start)
	c.recordOutcome(req.Method, endpoint, resp, start)
	return resp, err
}

// executeOwned runs the non-coalesced part of the pipeline for the call that
// owns the physical request.
func (c *Client) executeOwned(ctx context.Context, req *Request, endpoint, requestID string, start time.Time) (*Response, error) {
	// Credentials may have been rotated by another process; always reload.
	creds, err := c.credStore.Load()
	if err != nil {
		c.logWarn("Credential reload failed", "requestID", requestID, "error", err.Error())
		creds = Credentials{}
	}

	cacheable := c.cache != nil && c.cacheCondition != nil && c.cacheCondition(req)
	cacheKey := cacheKeyForRequest(req)

	if cacheable {
		if entry, found := c.cache.Get(cacheKey); found {
			c.metrics.RecordCacheHit(req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			return &Response{
				StatusCode: entry.StatusCode,
				Header:     entry.Header,
				Data:       entry.Data,
			}, nil
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	body, err := c.serializeRequestBody(req)
	if err != nil {
		return nil, c.terminalError(&callState{req: req, endpoint: endpoint, requestID: requestID, start: start}, ErrorTypeUnknown, "request body is not serializable", err, 0, 0, false)
	}

	state := &callState{
		req:       req,
		body:      body,
		endpoint:  endpoint,
		creds:     creds,
		requestID: requestID,
		start:     start,
		noRefresh: isAuthEndpoint(req.Path),
	}

	resp, err := c.do(ctx, state, 0)

	if err == nil && cacheable {
		c.cache.Set(cacheKey, &CacheEntry{
			Data:       resp.Data,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
		}, c.cacheTTL)

		if mem, ok := c.cache.(*InMemoryCache); ok {
			c.metrics.RecordCacheSize("default", mem.Len())
		}

		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	return resp, err
}

// do executes one attempt and recurses on retry or refresh-and-retry. attempt
// counts retries already spent; a refresh cycle does not advance it.
func (c *Client) do(ctx context.Context, state *callState, attempt int) (*Response, error) {
	req := state.req

	if c.rateLimiter != nil {
		if !c.rateLimiter.Allow() {
			c.metrics.RecordError(ErrorTypeRateLimit, req.Method, state.endpoint)
			return nil, c.terminalError(state, ErrorTypeRateLimit, "rate limit exceeded", ErrRateLimited, 0, attempt, false)
		}
		c.metrics.RecordRateLimiterTokens("default", c.rateLimiter.Tokens())
	}

	if !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker rejected call", "requestID", state.requestID, "endpoint", state.endpoint, "state", c.circuitBreaker.State().String())
		}
		c.metrics.RecordError(ErrorTypeUnavailable, req.Method, state.endpoint)
		return nil, c.terminalError(state, ErrorTypeUnavailable, "service temporarily unavailable", ErrCircuitOpen, 0, attempt, false)
	}

	if attempt > 0 {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Retry attempt", "requestID", state.requestID, "attempt", attempt, "maxRetries", c.maxRetries, "endpoint", state.endpoint)
		}
		c.metrics.RecordRetry(req.Method, state.endpoint, attempt)
	}

	httpResp, err := c.send(ctx, state)
	if err != nil {
		c.circuitBreaker.RecordFailure()
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
		c.metrics.RecordError(ErrorTypeNetwork, req.Method, state.endpoint)

		// A cancelled caller is terminal regardless of retry budget.
		if ctx.Err() != nil {
			return nil, c.terminalError(state, ErrorTypeNetwork, "request cancelled", ctx.Err(), 0, attempt, false)
		}

		if delay, retry := c.retryPolicy.ShouldRetry(0, nil, err, attempt); retry {
			if serr := c.sleep(ctx, state, delay, attempt); serr != nil {
				return nil, c.terminalError(state, ErrorTypeNetwork, "request cancelled", serr, 0, attempt, false)
			}
			return c.do(ctx, state, attempt+1)
		}

		return nil, c.terminalError(state, ErrorTypeNetwork, "network request failed", err, 0, attempt, true)
	}

	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	httpResp.Body.Close()
	if readErr != nil {
		c.circuitBreaker.RecordFailure()
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
		c.metrics.RecordError(ErrorTypeNetwork, req.Method, state.endpoint)

		if delay, retry := c.retryPolicy.ShouldRetry(0, nil, readErr, attempt); retry {
			if serr := c.sleep(ctx, state, delay, attempt); serr != nil {
				return nil, c.terminalError(state, ErrorTypeNetwork, "request cancelled", serr, 0, attempt, false)
			}
			return c.do(ctx, state, attempt+1)
		}
		return nil, c.terminalError(state, ErrorTypeNetwork, "reading response failed", readErr, 0, attempt, true)
	}

	status := httpResp.StatusCode

	if status >= 500 {
		c.circuitBreaker.RecordFailure()
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
	} else {
		// The dependency answered; only transport failures and 5xx count
		// against the breaker.
		c.circuitBreaker.RecordSuccess()
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
	}

	switch {
	case status >= 200 && status < 300:
		data, perr := normalizePayload(body)
		if perr != nil {
			c.metrics.RecordError(ErrorTypeUnknown, req.Method, state.endpoint)
			return nil, c.terminalError(state, ErrorTypeUnknown, perr.Error(), nil, status, attempt, false)
		}
		return &Response{
			StatusCode: status,
			Header:     httpResp.Header,
			Data:       data,
		}, nil

	case status == http.StatusUnauthorized && !state.noRefresh && !state.refreshed:
		state.refreshed = true
		if c.debug != nil && c.debug.Enabled && c.debug.LogRefresh && c.logger != nil {
			c.logger.Info("Token rejected, refreshing", "requestID", state.requestID, "endpoint", state.endpoint)
		}

		newCreds, rerr := c.refresher.refresh(ctx)
		if rerr != nil {
			c.metrics.RecordError(ErrorTypeAuth, req.Method, state.endpoint)
			return nil, c.terminalError(state, ErrorTypeAuth, "authentication failed", rerr, status, attempt, false)
		}

		// Restart with the fresh token; the retry budget is untouched, a
		// refresh cycle is not a retry.
		state.creds = newCreds
		return c.do(ctx, state, attempt)

	case status == http.StatusUnauthorized:
		c.metrics.RecordError(ErrorTypeAuth, req.Method, state.endpoint)
		return nil, c.terminalError(state, ErrorTypeAuth, c.errorMessage(body, httpResp.Status), nil, status, attempt, false)

	case status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		if delay, retry := c.retryPolicy.ShouldRetry(status, httpResp.Header, nil, attempt); retry {
			if serr := c.sleep(ctx, state, delay, attempt); serr != nil {
				return nil, c.terminalError(state, ErrorTypeNetwork, "request cancelled", serr, status, attempt, false)
			}
			return c.do(ctx, state, attempt+1)
		}
		errType := errorTypeForStatus(status)
		c.metrics.RecordError(errType, req.Method, state.endpoint)
		return nil, c.terminalError(state, errType, c.errorMessage(body, httpResp.Status), nil, status, attempt, true)

	default:
		// Remaining 4xx: the request itself is at fault and will not change
		// on retry.
		c.metrics.RecordError(ErrorTypeValidation, req.Method, state.endpoint)
		return nil, c.terminalError(state, ErrorTypeValidation, c.errorMessage(body, httpResp.Status), nil, status, attempt, false)
	}
}

// send builds and issues the physical HTTP request for one attempt.
func (c *Client) send(ctx context.Context, state *callState) (*http.Response, error) {
	var reader io.Reader
	if state.body != nil {
		reader = bytes.NewReader(state.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, state.req.Method, c.baseURL+state.req.Path, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range state.req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if state.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// Proceed without the header when no token is held; the downstream 401
	// is handled by the refresh path.
	if state.creds.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Token "+state.creds.AccessToken)
	}

	return c.httpClient.Do(httpReq)
}

func (c *Client) serializeRequestBody(req *Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	return serializeBody(req.Body)
}

// sleep waits out the backoff delay, honoring cancellation.
func (c *Client) sleep(ctx context.Context, state *callState, delay time.Duration, attempt int) error {
	if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
		c.logger.Info("Scheduling retry", "requestID", state.requestID, "attempt", attempt+1, "backoff", delay, "endpoint", state.endpoint)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorMessage extracts a display message from an error body, falling back
// to the HTTP status line.
func (c *Client) errorMessage(body []byte, status string) string {
	if msg := normalizeErrorBody(body); msg != "" {
		return msg
	}
	return status
}

// terminalError builds the classified error for a terminal failure. retryClass
// marks failures of a retryable class so exhaustion is tagged.
func (c *Client) terminalError(state *callState, errorType, message string, cause error, statusCode, attempt int, retryClass bool) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		StatusCode: statusCode,
		Method:     state.req.Method,
		Endpoint:   state.endpoint,
		RequestID:  state.requestID,
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Exhausted:  retryClass && attempt >= c.maxRetries,
		Timestamp:  time.Now(),
		Duration:   time.Since(state.start),
	}
}

func (c *Client) recordOutcome(method, endpoint string, resp *Response, start time.Time) {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))
}

// InvalidateCache removes a single cached endpoint.
func (c *Client) InvalidateCache(key string) {
	if c.cache != nil {
		c.cache.Invalidate(key)
	}
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// CircuitBreakerState exposes the breaker state for observability.
func (c *Client) CircuitBreakerState() CircuitState {
	return c.circuitBreaker.State()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...interface{}) {
	if c.debug != nil && c.debug.Enabled && c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

// endpointForPath strips the query string for metric and log labels.
func endpointForPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}

func isAuthEndpoint(path string) bool {
	p := endpointForPath(path)
	return p == loginEndpoint || p == refreshEndpoint || p == logoutEndpoint
}
