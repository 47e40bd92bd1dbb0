package crawler

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// SiteType is the analyzer's classification of a page (spec §4.2).
type SiteType string

const (
	SiteTypeComplexSPA        SiteType = "complex_spa"
	SiteTypeStandardDynamic   SiteType = "standard_dynamic"
	SiteTypeSimpleStatic      SiteType = "simple_static"
	SiteTypeAIAnalysisNeeded  SiteType = "ai_analysis_needed"
	SiteTypeAntiBotHeavy      SiteType = "anti_bot_heavy"
)

// JSComplexityLevel buckets the JavaScript-complexity score.
type JSComplexityLevel string

const (
	JSComplexityLow      JSComplexityLevel = "low"
	JSComplexityMedium   JSComplexityLevel = "medium"
	JSComplexityHigh     JSComplexityLevel = "high"
	JSComplexityVeryHigh JSComplexityLevel = "very_high"
)

// AntiBotRiskLevel buckets the anti-bot-detection score.
type AntiBotRiskLevel string

const (
	AntiBotRiskLow      AntiBotRiskLevel = "low"
	AntiBotRiskMedium   AntiBotRiskLevel = "medium"
	AntiBotRiskHigh     AntiBotRiskLevel = "high"
	AntiBotRiskVeryHigh AntiBotRiskLevel = "very_high"
)

// ContentLoadingPattern is the page's content-loading style.
type ContentLoadingPattern string

const (
	LoadingInfiniteScroll        ContentLoadingPattern = "infinite_scroll"
	LoadingPagination            ContentLoadingPattern = "pagination"
	LoadingAjax                  ContentLoadingPattern = "ajax_load"
	LoadingRequiresInteraction   ContentLoadingPattern = "requires_interaction"
	LoadingStatic                ContentLoadingPattern = "static"
)

// SiteAnalysis is the full output of the Site Analyzer (spec §4.2).
type SiteAnalysis struct {
	URL                string
	SiteType           SiteType
	SPAScore           int
	Frameworks         []string
	JSComplexityLevel  JSComplexityLevel
	JSComplexityScore  int
	AntiBotRiskLevel   AntiBotRiskLevel
	AntiBotRiskScore   int
	DetectedSystems    []string
	ContentLoading     ContentLoadingPattern
	RequiresJS         bool
	RequiresScrolling  bool
	RequiresInteraction bool
	Failed             bool
	Error              string
}

var (
	frameworkPatterns = map[string]*regexp.Regexp{
		"react":   regexp.MustCompile(`(?i)react|ReactDOM`),
		"vue":     regexp.MustCompile(`(?i)vue\.js|Vue\(`),
		"angular": regexp.MustCompile(`(?i)angular|ng-app`),
		"svelte":  regexp.MustCompile(`(?i)svelte`),
		"next":    regexp.MustCompile(`(?i)__NEXT_DATA__|_next`),
	}

	ajaxCallsRe     = regexp.MustCompile(`(?i)\.ajax\(|fetch\(|axios\.|XMLHttpRequest`)
	dynamicImportRe = regexp.MustCompile(`import\(|require\(`)
	eventListenerRe = regexp.MustCompile(`(?i)addEventListener|onClick|onLoad`)
	domManipRe      = regexp.MustCompile(`(?i)getElementById|querySelector|createElement`)
	asyncOpsRe      = regexp.MustCompile(`(?i)async|await|Promise|setTimeout`)

	antiBotCommercialRe = regexp.MustCompile(`distil_r_captcha|perimeterx|imperva|akamai|datadome`)

	infiniteScrollRe = regexp.MustCompile(`(?i)infinite.?scroll|lazy.?load`)
	paginationRe     = regexp.MustCompile(`(?i)pagination|page-\d+|next-page`)
	ajaxContentRe    = regexp.MustCompile(`(?i)load-more|ajax-load|dynamic-content`)
	interactionRe    = regexp.MustCompile(`(?i)click-to-load|show-more|expand`)
)

// SiteAnalyzer fetches a page sample and classifies it per spec §4.2,
// transcribing the scoring formulas from the original Python site analyzer.
type SiteAnalyzer struct {
	client *http.Client
	logger arbor.ILogger
}

// NewSiteAnalyzer builds a Site Analyzer with its own short-timeout client;
// analysis is a fast probe, not a full crawl.
func NewSiteAnalyzer(logger arbor.ILogger) *SiteAnalyzer {
	return &SiteAnalyzer{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Analyze fetches a sample of target and classifies it. If the sample
// fetch itself fails (403, network error), Failed is set and the caller
// (the Strategy Builder) falls back to its domain-keyword heuristic.
func (a *SiteAnalyzer) Analyze(ctx context.Context, target string) SiteAnalysis {
	html, headers, err := a.fetchSample(ctx, target)
	if err != nil {
		return SiteAnalysis{URL: target, Failed: true, Error: err.Error()}
	}
	return a.AnalyzeHTML(target, html, headers)
}

// AnalyzeHTML classifies a page given already-fetched HTML/headers, for
// callers that already have a sample (spec §4.2 accepts optional sample).
func (a *SiteAnalyzer) AnalyzeHTML(target, html string, headers http.Header) SiteAnalysis {
	if len(html) > 50000 {
		html = html[:50000] // matches the original's sampling cap
	}

	spaScore, frameworks := detectSiteType(html)
	jsLevel, jsScore := analyzeJSComplexity(html)
	antiBotLevel, antiBotScore, systems := detectAntiBot(html, headers)
	loading := analyzeContentLoading(html)

	siteType := SiteTypeSimpleStatic
	switch {
	case spaScore >= 70:
		siteType = SiteTypeComplexSPA
	case spaScore >= 40:
		siteType = SiteTypeStandardDynamic
	}
	// Anti-bot override: a high/very-high risk site is routed to the
	// browser-first anti_bot_heavy lane regardless of its SPA score,
	// matching _select_optimal_crawler's first branch in the original.
	if antiBotLevel == AntiBotRiskHigh || antiBotLevel == AntiBotRiskVeryHigh {
		siteType = SiteTypeAntiBotHeavy
	}

	return SiteAnalysis{
		URL:                 target,
		SiteType:            siteType,
		SPAScore:            spaScore,
		Frameworks:          frameworks,
		JSComplexityLevel:   jsLevel,
		JSComplexityScore:   jsScore,
		AntiBotRiskLevel:    antiBotLevel,
		AntiBotRiskScore:    antiBotScore,
		DetectedSystems:     systems,
		ContentLoading:      loading,
		RequiresJS:          jsScore > 30,
		RequiresScrolling:   infiniteScrollRe.MatchString(html),
		RequiresInteraction: interactionRe.MatchString(html),
	}
}

func (a *SiteAnalyzer) fetchSample(ctx context.Context, target string) (string, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", resp.Header, &statusError{code: resp.StatusCode}
	}

	body, err := readWithActivityTimeout(ctx, resp.Body, 10*time.Second, 30*time.Second, a.logger, target)
	if err != nil {
		return "", resp.Header, err
	}
	return string(body), resp.Header, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "HTTP " + strconv.Itoa(e.code) }

// detectSiteType computes the SPA score and matched frameworks (§4.2.1).
func detectSiteType(html string) (int, []string) {
	var frameworks []string
	anyFramework := false
	for name, re := range frameworkPatterns {
		if re.MatchString(html) {
			frameworks = append(frameworks, name)
			anyFramework = true
		}
	}

	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	scriptCount := 0
	domNodes := 0
	textLen := 0
	if doc != nil {
		scriptCount = doc.Find("script").Length()
		domNodes = doc.Find("*").Length()
		textLen = len(strings.TrimSpace(doc.Text()))
	}

	score := 0
	if scriptCount > 10 {
		score += 30
	}
	if anyFramework {
		score += 40
	}
	if strings.Contains(html, "data-reactroot") || strings.Contains(html, "__NEXT_DATA__") {
		score += 50
	}
	if textLen < 500 && domNodes > 50 {
		score += 30
	}
	return score, frameworks
}

// analyzeJSComplexity sums JS-pattern occurrences and levels the result (§4.2.2).
func analyzeJSComplexity(html string) (JSComplexityLevel, int) {
	count := len(ajaxCallsRe.FindAllString(html, -1)) +
		len(dynamicImportRe.FindAllString(html, -1)) +
		len(eventListenerRe.FindAllString(html, -1)) +
		len(domManipRe.FindAllString(html, -1)) +
		len(asyncOpsRe.FindAllString(html, -1))

	score := count * 2
	level := JSComplexityLow
	switch {
	case score > 100:
		level = JSComplexityVeryHigh
	case score > 50:
		level = JSComplexityHigh
	case score > 20:
		level = JSComplexityMedium
	}
	return level, score
}

// detectAntiBot scores boolean anti-bot indicators (§4.2.3).
func detectAntiBot(html string, headers http.Header) (AntiBotRiskLevel, int, []string) {
	lower := strings.ToLower(html)
	headerBlob := strings.ToLower(headerString(headers))

	indicators := map[string]bool{
		"cloudflare":     strings.Contains(lower, "cloudflare") || strings.Contains(headerBlob, "cf-ray"),
		"recaptcha":      strings.Contains(lower, "recaptcha") || strings.Contains(lower, "grecaptcha"),
		"captcha":        strings.Contains(lower, "captcha"),
		"bot_detection":  antiBotCommercialRe.MatchString(lower),
		"rate_limiting":  strings.Contains(headerBlob, "x-ratelimit") || strings.Contains(headerBlob, "retry-after") || strings.Contains(headerBlob, "x-rate-limit"),
		"js_challenge":   strings.Contains(lower, "challenge") && strings.Contains(lower, "javascript"),
	}

	var detected []string
	trueCount := 0
	for name, v := range indicators {
		if v {
			trueCount++
			detected = append(detected, name)
		}
	}

	score := trueCount * 25
	level := AntiBotRiskLow
	switch {
	case score >= 75:
		level = AntiBotRiskVeryHigh
	case score >= 50:
		level = AntiBotRiskHigh
	case score >= 25:
		level = AntiBotRiskMedium
	}
	return level, score, detected
}

func headerString(headers http.Header) string {
	var sb strings.Builder
	for k, v := range headers {
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(strings.Join(v, ","))
		sb.WriteString(" ")
	}
	return sb.String()
}

// analyzeContentLoading sniffs the page's content-loading pattern (§4.2.4).
func analyzeContentLoading(html string) ContentLoadingPattern {
	switch {
	case infiniteScrollRe.MatchString(html):
		return LoadingInfiniteScroll
	case paginationRe.MatchString(html):
		return LoadingPagination
	case ajaxContentRe.MatchString(html):
		return LoadingAjax
	case interactionRe.MatchString(html):
		return LoadingRequiresInteraction
	default:
		return LoadingStatic
	}
}
