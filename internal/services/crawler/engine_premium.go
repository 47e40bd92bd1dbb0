package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/parkseohuinim/ai-crawler/internal/common"
)

// geminiModel is the grounded-search model used by the premium engine.
const geminiModel = "gemini-2.0-flash"

// Default retry constants for Gemini API rate limiting, carried over from
// the teacher's dedicated Gemini retry helper (~60s observed quota window).
const (
	geminiMaxRetries        = 5
	geminiInitialBackoff    = 45 * time.Second
	geminiMaxBackoff        = 90 * time.Second
	geminiBackoffMultiplier = 1.5
)

var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// isRateLimitError matches 429/RESOURCE_EXHAUSTED/quota errors from genai.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "quota")
}

// extractRetryDelay parses the API-suggested retry delay out of a Gemini
// rate-limit error, e.g. "...Please retry in 45.387061394s...".
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// geminiBackoff computes the wait before the next attempt, preferring the
// API's own suggested delay (plus a small buffer) over the static default.
func geminiBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := geminiInitialBackoff
	if apiDelay > 0 {
		base = apiDelay + 5*time.Second
	}
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= geminiBackoffMultiplier
	}
	backoff := time.Duration(float64(base) * multiplier)
	if backoff > geminiMaxBackoff {
		backoff = geminiMaxBackoff
	}
	return backoff
}

// premiumSource is a grounded-search citation surfaced by Gemini's
// GoogleSearch tool.
type premiumSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// premiumEngine is the premium-SaaS engine adapter: it asks Gemini, with
// Google Search grounding enabled, to retrieve and summarize the page at
// the target URL. It succeeds where plain HTTP/browser fetches are blocked
// by anti-bot defenses, at the cost of a paid, rate-limited API.
type premiumEngine struct {
	client  *genai.Client
	config  common.GeminiConfig
	topN    int
	logger  arbor.ILogger
	limiter *rate.Limiter
}

var _ Engine = (*premiumEngine)(nil)

// NewPremiumEngine constructs the premium grounded-search engine adapter.
func NewPremiumEngine(cfg common.GeminiConfig, topN int, logger arbor.ILogger) *premiumEngine {
	if topN <= 0 {
		topN = 5
	}
	return &premiumEngine{config: cfg, topN: topN, logger: logger}
}

func (e *premiumEngine) Name() string { return "premium" }

func (e *premiumEngine) Capabilities() []string {
	return []string{CapabilityPremiumService, CapabilityAntiBotBypass}
}

// Initialize resolves the Gemini API key and builds the client. A missing
// key fails initialize gracefully, dropping the engine from the registry.
func (e *premiumEngine) Initialize(ctx context.Context) error {
	apiKey, err := common.ResolveAPIKey("GEMINI_API_KEY", e.config.APIKey)
	if err != nil {
		apiKey, err = common.ResolveAPIKey("GOOGLE_API_KEY", e.config.APIKey)
		if err != nil {
			return fmt.Errorf("premium engine unavailable: %w", err)
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("premium engine unavailable: failed to create Gemini client: %w", err)
	}
	e.client = client

	interval, err := time.ParseDuration(e.config.RateLimit)
	if err != nil || interval <= 0 {
		interval = time.Second
	}
	e.limiter = rate.NewLimiter(rate.Every(interval), 1)

	e.logger.Debug().Int("top_n", e.topN).Dur("rate_limit", interval).Msg("Premium engine initialized")
	return nil
}

func (e *premiumEngine) Cleanup() error {
	e.client = nil
	return nil
}

// Crawl asks Gemini to retrieve and summarize target via Google Search
// grounding, tolerating the service's own rate limiting internally.
func (e *premiumEngine) Crawl(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	start := time.Now()

	if e.client == nil {
		err := fmt.Errorf("premium engine not initialized")
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	timeout := strategy.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(reqCtx); err != nil {
			return NewFailedResult(target, e.Name(), "rate limit wait: "+err.Error()), err
		}
	}

	searchTool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}
	config := &genai.GenerateContentConfig{Tools: []*genai.Tool{searchTool}}

	prompt := fmt.Sprintf(`Retrieve and summarize the full content of the web page at %s.
Preserve its heading structure using markdown (# title, ## sections, ### sub-sections).
Cite up to %d source URLs you used.`, target, e.topN)

	resp, err := e.client.Models.GenerateContent(reqCtx, geminiModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	text, sources := extractGeminiResponse(resp)
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("premium engine returned no content for %s", target)
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	title := firstMarkdownHeading(text)
	if title == "" {
		title = target
	}
	hierarchy := extractHierarchyFromMarkdown(text, title)
	elapsed := time.Since(start).Seconds()
	quality := premiumQualityScore(text, len(sources))

	meta := NewMetadata(e.Name(), elapsed, quality, len(text))
	meta.Extra["gemini_model"] = geminiModel
	if len(sources) > 0 {
		meta.Extra["sources"] = sources
	}

	return CrawlResult{
		URL:       target,
		Title:     title,
		Text:      text,
		Hierarchy: hierarchy,
		Metadata:  meta,
		Status:    ResultStatusComplete,
		Timestamp: time.Now().UTC(),
	}, nil
}

// extractGeminiResponse pulls the text parts and grounding-chunk sources
// out of a GenerateContent response.
func extractGeminiResponse(resp *genai.GenerateContentResponse) (string, []premiumSource) {
	var text strings.Builder
	var sources []premiumSource
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if gm := resp.Candidates[0].GroundingMetadata; gm != nil && gm.GroundingChunks != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil {
				sources = append(sources, premiumSource{URL: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
	}
	return text.String(), sources
}

var markdownHeadingRegex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

func firstMarkdownHeading(text string) string {
	m := markdownHeadingRegex.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractHierarchyFromMarkdown builds the same 3-level outline as
// extractHierarchy, but from markdown `#`/`##`/`###` markers instead of
// HTML heading tags (spec §4.1: hierarchy extraction applies "whether
// parsed from HTML or from markdown"). Depth1 is the first `#` heading;
// title is used only when the text has none.
func extractHierarchyFromMarkdown(text, title string) HierarchyNode {
	node := HierarchyNode{Depth1: title, Depth2: map[string][]string{}, Depth3: map[string][]string{}}

	var currentH1, currentH2 string
	seenH1 := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "### "):
			h3 := strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
			key := currentH2
			if key == "" {
				key = currentH1
			}
			if key == "" {
				key = "other"
			}
			node.Depth3[key] = append(node.Depth3[key], h3)
		case strings.HasPrefix(trimmed, "## "):
			h2 := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			currentH2 = h2
			key := currentH1
			if key == "" {
				key = "other"
			}
			node.Depth2[key] = append(node.Depth2[key], h2)
		case strings.HasPrefix(trimmed, "# "):
			currentH1 = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			currentH2 = ""
			if !seenH1 {
				node.Depth1 = currentH1
				seenH1 = true
			}
		}
	}
	return node
}

// premiumQualityScore uses a floor between the HTTP and AI engines, since
// Gemini grounding typically returns a clean summary rather than raw DOM.
func premiumQualityScore(text string, sourceCount int) int {
	score := 45
	switch {
	case len(text) > 5000:
		score += 25
	case len(text) > 1000:
		score += 15
	case len(text) > 100:
		score += 5
	}
	if sourceCount > 0 {
		score += 5
	}
	if sourceCount > 3 {
		score += 3
	}
	if strings.Contains(text, "##") {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// CrawlWithRetry wraps Crawl with Gemini-specific rate-limit-aware backoff
// layered on top of the shared permanent/transient classification.
func (e *premiumEngine) CrawlWithRetry(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	maxAttempts := geminiMaxRetries
	if strategy.MaxRetries > 0 {
		maxAttempts = strategy.MaxRetries
	}

	var lastResult CrawlResult
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastResult, lastErr = e.Crawl(ctx, target, strategy)
		if lastErr == nil {
			return lastResult, nil
		}

		if isRateLimitError(lastErr) {
			delay := geminiBackoff(attempt, extractRetryDelay(lastErr))
			e.logger.Warn().Str("url", target).Dur("backoff", delay).Msg("Premium engine rate limited, backing off")
			select {
			case <-ctx.Done():
				return NewFailedResult(target, e.Name(), ctx.Err().Error()), ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if ClassifyError(0, lastErr) != ErrorClassTransient {
			return lastResult, lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(time.Second * time.Duration(1<<uint(attempt)))
		}
	}

	return NewFailedResult(target, e.Name(), lastErr.Error()), lastErr
}
