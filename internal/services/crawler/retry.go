package crawler

import (
	"math/rand"
	"time"
)

// RetryPolicy defines the exponential-backoff shape shared by crawl_with_retry
// across engines (spec §4.1/§7). The actual retry/no-retry decision is driven
// by ClassifyError's message-based taxonomy, not a status-code table.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ErrorClass is the error taxonomy from spec §7.
type ErrorClass string

const (
	ErrorClassTransient        ErrorClass = "transient"          // timeouts/resets/5xx - retried then fallback
	ErrorClassPermanentPerURL  ErrorClass = "permanent_per_url"  // 404/403/DNS/refused/invalid/SSL - not retried, next engine tried
	ErrorClassPermanentRequest ErrorClass = "permanent_request"  // URL validation failure, empty registry
	ErrorClassSystem           ErrorClass = "system"             // adapter init failure
)

// ClassifyError buckets a crawl error into the spec §7 taxonomy using
// status code first, then a substring scan of the error text.
func ClassifyError(statusCode int, err error) ErrorClass {
	if statusCode == 404 || statusCode == 403 {
		return ErrorClassPermanentPerURL
	}
	if statusCode >= 500 || statusCode == 408 || statusCode == 429 {
		return ErrorClassTransient
	}
	if err == nil {
		return ErrorClassTransient
	}
	msg := err.Error()
	for _, s := range []string{
		"404", "not found", "403", "forbidden",
		"no such host", "dns", "connection refused",
		"certificate", "x509", "invalid url", "malformed url",
	} {
		if containsFold(msg, s) {
			return ErrorClassPermanentPerURL
		}
	}
	return ErrorClassTransient
}

// containsFold is a case-insensitive substring check without pulling in strings.EqualFold per rune pair.
func containsFold(s, substr string) bool {
	sl, subl := len(s), len(substr)
	if subl == 0 || subl > sl {
		return subl == 0
	}
	lower := func(b byte) byte {
		if b >= 'A' && b <= 'Z' {
			return b + ('a' - 'A')
		}
		return b
	}
	for i := 0; i <= sl-subl; i++ {
		match := true
		for j := 0; j < subl; j++ {
			if lower(s[i+j]) != lower(substr[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// pow calculates base^exp for float64
func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
