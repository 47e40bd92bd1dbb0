package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// hostLabelRegex is a conservative check that a URL's host looks like a
// real domain (letters/digits/hyphens separated by dots), not a bare IP
// fragment or garbage string.
var hostLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

// Orchestrator is the single entry point for a crawl: it resolves a
// strategy (via the Site Analyzer + Strategy Builder, unless overridden)
// and runs engines in priority order with retry/fallback (spec §4.4).
type Orchestrator struct {
	registry *Registry
	analyzer *SiteAnalyzer
	builder  *StrategyBuilder
	logger   arbor.ILogger
}

// NewOrchestrator wires the registry, analyzer and strategy builder into
// one crawl entry point.
func NewOrchestrator(registry *Registry, analyzer *SiteAnalyzer, builder *StrategyBuilder, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{registry: registry, analyzer: analyzer, builder: builder, logger: logger}
}

// Crawl validates target, resolves a strategy, then tries engines in
// priority order until one succeeds or the list is exhausted (spec §4.4).
func (o *Orchestrator) Crawl(ctx context.Context, target string, override *CrawlStrategy) CrawlResult {
	if err := validateCrawlURL(target); err != nil {
		result := NewFailedResult(target, "", err.Error())
		result.Metadata.Extra["error_type"] = "permanent_request"
		return result
	}

	var strategy CrawlStrategy
	var analysis SiteAnalysis
	if override != nil {
		strategy = *override
	} else {
		analysis = o.analyzer.Analyze(ctx, target)
		strategy = o.builder.Build(analysis)
	}

	if len(strategy.EnginePriority) == 0 {
		result := NewFailedResult(target, "", "no engines available for this URL")
		result.Metadata.Extra["error_type"] = "permanent_request"
		return result
	}

	var attempted []string
	var lastErrMsg string

	for i, name := range strategy.EnginePriority {
		engine, ok := o.registry.Get(name)
		if !ok {
			o.logger.Warn().Str("engine", name).Str("url", target).Msg("Engine not in registry, skipping")
			continue
		}

		attempted = append(attempted, name)
		attemptStart := time.Now()
		result, err := engine.CrawlWithRetry(ctx, target, strategy)
		elapsed := time.Since(attemptStart)

		if err == nil && result.Status == ResultStatusComplete {
			result.Metadata.AttemptedEngines = attempted
			result.Metadata.SuccessfulEngineIndex = i + 1
			result.Metadata.TotalAvailableEngines = len(strategy.EnginePriority)
			result.Metadata.EngineUsed = name
			result.Metadata.FallbackStrategyUsed = strategy.FallbackStrategy
			result.Metadata.EngineSelectionReason = buildSelectionReason(name, analysis, strategy, attempted, i+1)
			if !strategy.FallbackStrategy {
				result.Metadata.Extra["mcp_analysis"] = analysis
			}
			result.Metadata.ProcessingTime = formatDurationSeconds(elapsed.Seconds())
			return result
		}

		if err != nil {
			lastErrMsg = err.Error()
		} else {
			lastErrMsg = result.Error
		}
		o.logger.Debug().Str("engine", name).Str("url", target).Str("error", lastErrMsg).Msg("Engine attempt failed, trying next")
	}

	failed := NewFailedResult(target, "", lastErrMsg)
	failed.Metadata.AttemptedEngines = attempted
	failed.Metadata.AllEnginesFailed = true
	failed.Metadata.TotalAvailableEngines = len(strategy.EnginePriority)
	failed.Metadata.FallbackStrategyUsed = strategy.FallbackStrategy
	return failed
}

// buildSelectionReason summarizes why an engine was chosen, for the
// caller's UI (spec §4.4's engine_selection_reason contract).
func buildSelectionReason(engineUsed string, analysis SiteAnalysis, strategy CrawlStrategy, attempted []string, successOnAttempt int) string {
	method := "ai-driven"
	confidence := 0.0
	if strategy.FallbackStrategy {
		method = "fallback"
	} else {
		confidence = confidenceForSiteType(analysis.SiteType)
	}

	var reasons []string
	if analysis.SPAScore >= 70 {
		reasons = append(reasons, fmt.Sprintf("spa_score %d >= 70", analysis.SPAScore))
	} else if analysis.SPAScore >= 40 {
		reasons = append(reasons, fmt.Sprintf("spa_score %d >= 40", analysis.SPAScore))
	}
	if analysis.AntiBotRiskLevel == AntiBotRiskHigh || analysis.AntiBotRiskLevel == AntiBotRiskVeryHigh {
		reasons = append(reasons, fmt.Sprintf("anti_bot_risk %s", analysis.AntiBotRiskLevel))
	}
	if analysis.RequiresJS {
		reasons = append(reasons, "requires_js")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "default static-content path")
	}

	return fmt.Sprintf(
		"selected=%s confidence=%.2f analysis_method=%s site_type=%s js_level=%s js_score=%d anti_bot_risk=%s requires_js=%t reasons=[%s] attempted=%v success_on_attempt=%d",
		engineUsed, confidence, method, analysis.SiteType, analysis.JSComplexityLevel, analysis.JSComplexityScore,
		analysis.AntiBotRiskLevel, analysis.RequiresJS, strings.Join(reasons, "; "), attempted, successOnAttempt,
	)
}

func confidenceForSiteType(t SiteType) float64 {
	switch t {
	case SiteTypeAntiBotHeavy:
		return 0.8
	case SiteTypeComplexSPA, SiteTypeAIAnalysisNeeded:
		return 0.9
	case SiteTypeStandardDynamic:
		return 0.85
	default:
		return 0.75
	}
}

// validateCrawlURL enforces spec §4.4 step 1: scheme in {http, https},
// non-empty host matching a conservative label pattern, and rejection of
// well-known unsupported schemes and empty anchors.
func validateCrawlURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "#" {
		return fmt.Errorf("empty or anchor-only URL")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "javascript:") {
		return fmt.Errorf("javascript: URLs are not supported")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "mailto:") {
		return fmt.Errorf("mailto: URLs are not supported")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (expected http or https)", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has an empty host")
	}
	if !hostLabelRegex.MatchString(host) {
		return fmt.Errorf("URL host %q does not look like a valid domain", host)
	}
	return nil
}
