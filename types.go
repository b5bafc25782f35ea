package eduwire

import (
	"encoding/json"
	"net/http"
	"time"
)

// Request describes one logical call to the backend API. It is immutable once
// handed to the client; identity for coalescing and caching is derived from
// Method + Path + serialized body.
type Request struct {
	Method string
	Path   string
	Body   interface{}
	Header http.Header
}

// Response is the normalized outcome of a successful call. Data holds the
// payload with one level of server envelope unwrapped; it is shared between
// coalesced callers and must be treated as read-only.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       json.RawMessage
}

// Decode unmarshals the normalized payload into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Credentials is the access/refresh token pair persisted by a CredentialStore.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Empty reports whether no access token is held.
func (c Credentials) Empty() bool {
	return c.AccessToken == ""
}

// CredentialStore owns the durable credential pair. Load is called before
// every request so that changes made by another process are observed.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CacheEntry represents a cached GET payload.
type CacheEntry struct {
	Data       json.RawMessage
	StatusCode int
	Header     http.Header
	ExpiresAt  time.Time // zero means no automatic expiry
}

// Cache is the response cache consulted for GET requests. Keys are endpoint
// paths including the query string.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Invalidate(key string)
	Clear()
}

// CacheCondition decides whether a request's response may be served from and
// stored into the cache.
type CacheCondition func(req *Request) bool

// CoalesceCondition decides whether a request participates in in-flight
// coalescing.
type CoalesceCondition func(req *Request) bool

// RetryPolicy decides whether a failed attempt should be retried and with
// what delay. statusCode is zero when no response was received.
type RetryPolicy interface {
	ShouldRetry(statusCode int, header http.Header, err error, attempt int) (time.Duration, bool)
}

// RateLimiter is a token-bucket throttle applied before each outgoing attempt.
type RateLimiter struct {
	maxTokens  int64
	tokens     int64
	refillRate time.Duration
	lastRefill int64
}

// Option configures a Client.
type Option func(*Client)
