package crawler

import (
	"strings"
	"time"
)

// enginePriorityTable maps site-type to its primary engine plus fallback
// order (spec §4.3), transcribed from the original's `crawler_strategies`
// dict with engine names remapped to this module's four adapters.
var enginePriorityTable = map[SiteType][]string{
	SiteTypeComplexSPA:       {"ai-assisted", "premium", "browser", "http"},
	SiteTypeAIAnalysisNeeded: {"ai-assisted", "premium", "browser", "http"},
	SiteTypeAntiBotHeavy:     {"browser", "premium", "ai-assisted", "http"},
	SiteTypeStandardDynamic:  {"browser", "ai-assisted", "premium", "http"},
	SiteTypeSimpleStatic:     {"http", "ai-assisted", "premium", "browser"},
}

// timeoutHints gives the per-type connection-timeout seconds (spec §4.3).
var timeoutHints = map[SiteType]time.Duration{
	SiteTypeComplexSPA:       60 * time.Second,
	SiteTypeAntiBotHeavy:     60 * time.Second,
	SiteTypeAIAnalysisNeeded: 45 * time.Second,
	SiteTypeStandardDynamic:  40 * time.Second,
	SiteTypeSimpleStatic:     30 * time.Second,
}

var (
	fallbackSPAKeywords      = []string{"react.dev", "vue", "angular", "spa"}
	fallbackShoppingKeywords = []string{"shop.kt.com", "shopping", "ecommerce", "store"}
	fallbackSecurityKeywords = []string{"cloudflare", "protected", "secure"}
	fallbackDynamicKeywords  = []string{"dynamic", "app", "portal"}
)

// StrategyBuilder maps Site Analyzer output (or a domain-keyword
// heuristic when the analyzer is unreachable) to a CrawlStrategy (spec §4.3).
type StrategyBuilder struct {
	registry *Registry
}

// NewStrategyBuilder builds a Strategy Builder bound to the engine registry
// so its priority lists can be intersected against what's actually available.
func NewStrategyBuilder(registry *Registry) *StrategyBuilder {
	return &StrategyBuilder{registry: registry}
}

// Build resolves a CrawlStrategy from a (possibly failed) SiteAnalysis. On
// analyzer failure it falls back to the domain-keyword heuristic and marks
// the strategy with FallbackStrategy=true.
func (b *StrategyBuilder) Build(analysis SiteAnalysis) CrawlStrategy {
	siteType := analysis.SiteType
	fallback := false
	if analysis.Failed {
		siteType = b.fallbackSiteType(analysis.URL)
		fallback = true
	}

	priority := enginePriorityTable[siteType]
	if priority == nil {
		priority = enginePriorityTable[SiteTypeSimpleStatic]
	}

	timeout := timeoutHints[siteType]
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	strategy := CrawlStrategy{
		EnginePriority:   b.filterToRegistry(priority),
		Timeout:          timeout,
		MaxRetries:       3,
		WaitTime:         1 * time.Second,
		ActivityTimeout:  15 * time.Second,
		MaxTotalTime:     300 * time.Second,
		AntiBotMode:      siteType == SiteTypeAntiBotHeavy,
		ExtractLinks:     true,
		FallbackStrategy: fallback,
	}
	return strategy
}

// fallbackSiteType is the substring-match heuristic used when the analyzer
// is unreachable (spec §4.3), transcribed from `_get_fallback_strategy`.
func (b *StrategyBuilder) fallbackSiteType(target string) SiteType {
	domain := strings.ToLower(target)

	if containsAny(domain, fallbackSPAKeywords) {
		return SiteTypeComplexSPA
	}
	if containsAny(domain, fallbackShoppingKeywords) {
		return SiteTypeAIAnalysisNeeded
	}
	if containsAny(domain, fallbackSecurityKeywords) {
		return SiteTypeAntiBotHeavy
	}
	if containsAny(domain, fallbackDynamicKeywords) {
		return SiteTypeStandardDynamic
	}
	return SiteTypeSimpleStatic
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// filterToRegistry intersects priority with the registered engines,
// preserving priority's order. If the intersection is empty, the full
// registry is substituted in its own order rather than failing (spec §4.3).
func (b *StrategyBuilder) filterToRegistry(priority []string) []string {
	if b.registry == nil {
		return priority
	}
	available := make(map[string]bool)
	for _, name := range b.registry.Names() {
		available[name] = true
	}

	filtered := make([]string, 0, len(priority))
	for _, name := range priority {
		if available[name] {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) == 0 {
		return b.registry.Names()
	}
	return filtered
}
