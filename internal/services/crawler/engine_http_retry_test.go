package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/common"
)

func newTestHTTPEngine() *httpEngine {
	e := NewHTTPEngine(common.CrawlerConfig{UserAgent: "test-agent"}, arbor.NewLogger())
	e.retry.InitialBackoff = time.Millisecond
	e.retry.MaxBackoff = 5 * time.Millisecond
	return e
}

func testStrategy() CrawlStrategy {
	return CrawlStrategy{
		Timeout:         2 * time.Second,
		MaxRetries:      3,
		ActivityTimeout: 2 * time.Second,
		MaxTotalTime:    2 * time.Second,
	}
}

func TestHTTPEngineCrawlWithRetryRetriesTransient5xxSurfacedAsPlainError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html><head><title>ok</title></head><body>content</body></html>`))
	}))
	defer srv.Close()

	e := newTestHTTPEngine()
	result, err := e.CrawlWithRetry(context.Background(), srv.URL, testStrategy())

	if err != nil {
		t.Fatalf("expected the third attempt to succeed, got err=%v", err)
	}
	if result.Status != ResultStatusComplete {
		t.Errorf("expected a completed result, got status=%q", result.Status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected exactly 3 attempts (2 x 503 then success), got %d", calls)
	}
}

func TestHTTPEngineCrawlWithRetryDoesNotRetryPermanent404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := newTestHTTPEngine()
	_, err := e.CrawlWithRetry(context.Background(), srv.URL, testStrategy())

	if err == nil {
		t.Fatal("expected an error for a persistent 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent per-URL error, got %d", calls)
	}
}
