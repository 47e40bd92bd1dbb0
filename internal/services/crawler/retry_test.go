package crawler

import (
	"errors"
	"testing"
)

func TestCalculateBackoffRespectsMaxAndStaysPositive(t *testing.T) {
	p := NewRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		backoff := p.CalculateBackoff(attempt)
		if backoff < 0 {
			t.Fatalf("backoff should never be negative, got %v at attempt %d", backoff, attempt)
		}
		if backoff > p.MaxBackoff+p.MaxBackoff/4 {
			t.Fatalf("backoff %v exceeds max backoff plus jitter bound at attempt %d", backoff, attempt)
		}
	}
}

func TestClassifyErrorTaxonomyByStatusCode(t *testing.T) {
	if got := ClassifyError(404, nil); got != ErrorClassPermanentPerURL {
		t.Errorf("404 should classify as permanent_per_url, got %q", got)
	}
	if got := ClassifyError(403, nil); got != ErrorClassPermanentPerURL {
		t.Errorf("403 should classify as permanent_per_url, got %q", got)
	}
	if got := ClassifyError(503, nil); got != ErrorClassTransient {
		t.Errorf("503 should classify as transient, got %q", got)
	}
	if got := ClassifyError(429, nil); got != ErrorClassTransient {
		t.Errorf("429 should classify as transient, got %q", got)
	}
}

func TestClassifyErrorTaxonomyByMessage(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorClass
	}{
		{"http 404: page not found", ErrorClassPermanentPerURL},
		{"404 Not Found", ErrorClassPermanentPerURL},
		{"http 403: forbidden", ErrorClassPermanentPerURL},
		{"403 Forbidden", ErrorClassPermanentPerURL},
		{"no such host", ErrorClassPermanentPerURL},
		{"dial tcp: lookup example.com: dns error", ErrorClassPermanentPerURL},
		{"connection refused", ErrorClassPermanentPerURL},
		{"x509: certificate signed by unknown authority", ErrorClassPermanentPerURL},
		{"invalid URL scheme", ErrorClassPermanentPerURL},
		{"malformed URL: missing host", ErrorClassPermanentPerURL},
		{"http 503: service unavailable", ErrorClassTransient},
		{"read tcp: connection reset by peer", ErrorClassTransient},
	}
	for _, c := range cases {
		if got := ClassifyError(0, errors.New(c.msg)); got != c.want {
			t.Errorf("ClassifyError(0, %q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestClassifyErrorNilErrorWithNoStatusIsTransient(t *testing.T) {
	if got := ClassifyError(0, nil); got != ErrorClassTransient {
		t.Errorf("expected transient default for a nil error with no status code, got %q", got)
	}
}
