package crawler

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
)

func registryWith(names ...string) *Registry {
	r := NewRegistry(arbor.NewLogger())
	for _, n := range names {
		r.Register(context.Background(), &fakeEngine{name: n})
	}
	return r
}

func TestStrategyBuilderUsesAnalyzerSiteType(t *testing.T) {
	b := NewStrategyBuilder(registryWith("ai-assisted", "premium", "browser", "http"))
	strategy := b.Build(SiteAnalysis{SiteType: SiteTypeComplexSPA})

	if len(strategy.EnginePriority) == 0 || strategy.EnginePriority[0] != "ai-assisted" {
		t.Errorf("expected complex_spa to prioritize ai-assisted first, got %v", strategy.EnginePriority)
	}
	if strategy.FallbackStrategy {
		t.Error("a successful analysis should not be marked as a fallback strategy")
	}
}

func TestStrategyBuilderFallsBackOnAnalyzerFailure(t *testing.T) {
	b := NewStrategyBuilder(registryWith("http", "ai-assisted", "premium", "browser"))
	strategy := b.Build(SiteAnalysis{Failed: true, URL: "https://shopping.example.com/cart"})

	if !strategy.FallbackStrategy {
		t.Error("expected FallbackStrategy=true when the analyzer failed")
	}
	// "shopping" matches fallbackShoppingKeywords -> ai_analysis_needed tier.
	if len(strategy.EnginePriority) == 0 || strategy.EnginePriority[0] != "ai-assisted" {
		t.Errorf("expected the shopping-keyword fallback to prioritize ai-assisted, got %v", strategy.EnginePriority)
	}
}

func TestStrategyBuilderAntiBotHeavySetsAntiBotMode(t *testing.T) {
	b := NewStrategyBuilder(registryWith("browser", "premium", "ai-assisted", "http"))
	strategy := b.Build(SiteAnalysis{SiteType: SiteTypeAntiBotHeavy})

	if !strategy.AntiBotMode {
		t.Error("expected AntiBotMode=true for an anti_bot_heavy classification")
	}
	if strategy.EnginePriority[0] != "browser" {
		t.Errorf("expected browser first for anti_bot_heavy, got %v", strategy.EnginePriority)
	}
}

func TestStrategyBuilderFiltersToRegisteredEngines(t *testing.T) {
	// Only "http" is registered; the simple_static priority list names
	// four engines, so the strategy should be pruned to just the one.
	b := NewStrategyBuilder(registryWith("http"))
	strategy := b.Build(SiteAnalysis{SiteType: SiteTypeSimpleStatic})

	if len(strategy.EnginePriority) != 1 || strategy.EnginePriority[0] != "http" {
		t.Errorf("expected priority filtered down to [http], got %v", strategy.EnginePriority)
	}
}

func TestStrategyBuilderFallsBackToFullRegistryWhenIntersectionEmpty(t *testing.T) {
	// None of the registered engines appear in simple_static's priority
	// list under this name, so filterToRegistry should fall back to the
	// full (unfiltered) registry order rather than returning empty.
	r := NewRegistry(arbor.NewLogger())
	r.Register(context.Background(), &fakeEngine{name: "custom-engine"})
	b := NewStrategyBuilder(r)

	strategy := b.Build(SiteAnalysis{SiteType: SiteTypeSimpleStatic})

	if len(strategy.EnginePriority) != 1 || strategy.EnginePriority[0] != "custom-engine" {
		t.Errorf("expected the full registry as a fallback, got %v", strategy.EnginePriority)
	}
}

func TestFallbackSiteTypeKeywordHeuristic(t *testing.T) {
	b := &StrategyBuilder{}
	cases := []struct {
		url  string
		want SiteType
	}{
		{"https://app.react.dev/dashboard", SiteTypeComplexSPA},
		{"https://shop.example.com/store", SiteTypeAIAnalysisNeeded},
		{"https://secure.example.com/protected", SiteTypeAntiBotHeavy},
		{"https://portal.example.com/app", SiteTypeStandardDynamic},
		{"https://plain.example.com/about", SiteTypeSimpleStatic},
	}
	for _, c := range cases {
		if got := b.fallbackSiteType(c.url); got != c.want {
			t.Errorf("fallbackSiteType(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}
