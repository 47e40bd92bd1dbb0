package crawler

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
)

func newTestOrchestrator(t *testing.T, engines ...*fakeEngine) (*Orchestrator, *Registry) {
	t.Helper()
	logger := arbor.NewLogger()
	registry := NewRegistry(logger)
	for _, e := range engines {
		registry.Register(context.Background(), e)
	}
	analyzer := NewSiteAnalyzer(logger)
	builder := NewStrategyBuilder(registry)
	return NewOrchestrator(registry, analyzer, builder, logger), registry
}

func TestOrchestratorRejectsInvalidURLWithoutTryingEngines(t *testing.T) {
	engine := &fakeEngine{name: "http", result: CrawlResult{Status: ResultStatusComplete}}
	o, _ := newTestOrchestrator(t, engine)

	result := o.Crawl(context.Background(), "javascript:alert(1)", nil)

	if result.Status != ResultStatusFailed {
		t.Fatalf("expected a failed result for an invalid URL, got %+v", result)
	}
	if result.Metadata.Extra["error_type"] != "permanent_request" {
		t.Errorf("expected error_type=permanent_request, got %v", result.Metadata.Extra["error_type"])
	}
}

func TestOrchestratorFallsThroughToNextEngineOnFailure(t *testing.T) {
	strategy := CrawlStrategy{EnginePriority: []string{"browser", "http"}}
	broken := &fakeEngine{name: "browser", result: NewFailedResult("", "browser", "broken")}
	working := &fakeEngine{name: "http", result: CrawlResult{Status: ResultStatusComplete, Text: "ok", Metadata: Metadata{Extra: map[string]interface{}{}}}}
	o, _ := newTestOrchestrator(t, broken, working)

	result := o.Crawl(context.Background(), "https://example.com/", &strategy)

	if result.Status != ResultStatusComplete {
		t.Fatalf("expected the second engine to succeed, got %+v", result)
	}
	if result.Metadata.EngineUsed != "http" {
		t.Errorf("expected engine_used=http, got %q", result.Metadata.EngineUsed)
	}
	if result.Metadata.SuccessfulEngineIndex != 2 {
		t.Errorf("expected successful_engine_index=2, got %d", result.Metadata.SuccessfulEngineIndex)
	}
	if len(result.Metadata.AttemptedEngines) != 2 {
		t.Errorf("expected both engines recorded as attempted, got %v", result.Metadata.AttemptedEngines)
	}
}

func TestOrchestratorReturnsFailedWhenAllEnginesFail(t *testing.T) {
	strategy := CrawlStrategy{EnginePriority: []string{"http"}}
	broken := &fakeEngine{name: "http", result: NewFailedResult("", "http", "down")}
	o, _ := newTestOrchestrator(t, broken)

	result := o.Crawl(context.Background(), "https://example.com/", &strategy)

	if result.Status != ResultStatusFailed {
		t.Fatalf("expected a failed result, got %+v", result)
	}
	if !result.Metadata.AllEnginesFailed {
		t.Error("expected all_engines_failed=true")
	}
}

func TestOrchestratorSkipsEnginesMissingFromRegistry(t *testing.T) {
	strategy := CrawlStrategy{EnginePriority: []string{"ghost", "http"}}
	working := &fakeEngine{name: "http", result: CrawlResult{Status: ResultStatusComplete, Metadata: Metadata{Extra: map[string]interface{}{}}}}
	o, _ := newTestOrchestrator(t, working)

	result := o.Crawl(context.Background(), "https://example.com/", &strategy)

	if result.Status != ResultStatusComplete {
		t.Fatalf("expected the registered engine to still succeed, got %+v", result)
	}
	if len(result.Metadata.AttemptedEngines) != 1 || result.Metadata.AttemptedEngines[0] != "http" {
		t.Errorf("expected only the registered engine counted as attempted, got %v", result.Metadata.AttemptedEngines)
	}
}

func TestOrchestratorReturnsPermanentRequestErrorWhenStrategyHasNoEngines(t *testing.T) {
	strategy := CrawlStrategy{EnginePriority: []string{}}
	o, _ := newTestOrchestrator(t)

	result := o.Crawl(context.Background(), "https://example.com/", &strategy)

	if result.Status != ResultStatusFailed {
		t.Fatalf("expected failure with an empty engine priority list, got %+v", result)
	}
	if result.Metadata.Extra["error_type"] != "permanent_request" {
		t.Errorf("expected error_type=permanent_request, got %v", result.Metadata.Extra["error_type"])
	}
}

func TestValidateCrawlURLRejectsKnownBadSchemes(t *testing.T) {
	cases := []string{"", "#", "javascript:alert(1)", "mailto:a@b.com", "ftp://example.com/file"}
	for _, c := range cases {
		if err := validateCrawlURL(c); err == nil {
			t.Errorf("expected validateCrawlURL(%q) to reject, got nil error", c)
		}
	}
}

func TestValidateCrawlURLAcceptsPlainHTTPS(t *testing.T) {
	if err := validateCrawlURL("https://example.com/page?q=1"); err != nil {
		t.Errorf("expected a normal https URL to validate, got %v", err)
	}
}
