package gateway

import (
	"net/http"
	"sync/atomic"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests      atomic.Int64
	webhooks      atomic.Int64
	webhookErrors atomic.Int64
	authFailures  atomic.Int64
	rateLimited   atomic.Int64
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordWebhook records one webhook delivery and whether its handler failed.
func (m *Metrics) RecordWebhook(err error) {
	m.webhooks.Add(1)
	if err != nil {
		m.webhookErrors.Add(1)
	}
}

// RecordAuthFailure records a rejected admin request.
func (m *Metrics) RecordAuthFailure() {
	m.authFailures.Add(1)
}

// RecordRateLimited records an admin request refused by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:      m.requests.Load(),
		Webhooks:      m.webhooks.Load(),
		WebhookErrors: m.webhookErrors.Load(),
		AuthFailures:  m.authFailures.Load(),
		RateLimited:   m.rateLimited.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests      int64 `json:"requests"`
	Webhooks      int64 `json:"webhooks"`
	WebhookErrors int64 `json:"webhook_errors"`
	AuthFailures  int64 `json:"auth_failures"`
	RateLimited   int64 `json:"rate_limited"`
}

// countRequests is a middleware counting every request reaching the router.
func (m *Metrics) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RecordRequest()
		next.ServeHTTP(w, r)
	})
}
