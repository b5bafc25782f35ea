// Package eduwire is the resilient client for the EduWire learning-platform
// admin API. It mediates every call between the administration UI and the
// backend with composable reliability primitives:
//
//   - Request coalescing (merges concurrent identical in-flight requests)
//   - Retries with exponential backoff + jitter, Retry-After aware
//   - Circuit breaker (open / half-open / closed, single half-open probe)
//   - Endpoint-keyed response caching with an administrative exclusion list
//   - Token lifecycle: durable credential store + serialized refresh
//   - Client-side rate limiting (token bucket)
//   - Prometheus metrics and lightweight structured debug logging
//   - Realtime notification stream with backoff-driven reconnection
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Every terminal failure is a *ClientError with a machine-checkable category
//   - Safe concurrent use of a single *Client instance
//   - No hidden globals: breaker, cache, in-flight table and credentials are
//     owned by the Client and injectable for tests
//
// Typical usage:
//
//	client := eduwire.New("https://api.eduwire.example",
//	    eduwire.WithMaxRetries(3),
//	    eduwire.WithCircuitBreaker(eduwire.CircuitBreakerConfig{}),
//	    eduwire.WithMetrics(),
//	)
//	if err := client.Login(ctx, user, pass); err != nil { ... }
//	resp, err := client.Get(ctx, "/courses/")
//
// Profile, user roster, staff and tutor roster endpoints are never cached:
// their staleness would cause administrative errors. Everything else read via
// GET is cached until explicitly invalidated.
package eduwire
