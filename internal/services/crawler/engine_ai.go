package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/parkseohuinim/ai-crawler/internal/common"
)

// maxAIPromptChars bounds how much of a page's cleaned text is sent to the
// model; complex SPAs this engine targets rarely need more than this to
// recover a faithful outline.
const maxAIPromptChars = 16000

// aiExtraction is the structured shape requested from the model.
type aiExtraction struct {
	Title     string              `json:"title"`
	Text      string              `json:"text"`
	Depth1    string              `json:"depth1"`
	Depth2    map[string][]string `json:"depth2"`
	Depth3    map[string][]string `json:"depth3"`
}

// aiEngine is the AI-assisted engine adapter: it fetches the raw page the
// same way the HTTP engine does, then hands the cleaned text to Claude to
// recover a faithful title/body/hierarchy for pages whose structure defeats
// plain CSS-selector heuristics (SPA shells, heavily scripted markup).
type aiEngine struct {
	client     *anthropic.Client
	config     common.ClaudeConfig
	logger     arbor.ILogger
	retry      *RetryPolicy
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

var _ Engine = (*aiEngine)(nil)

// NewAIEngine constructs the AI-assisted engine adapter. The Anthropic
// client itself is created lazily in Initialize once the API key resolves.
func NewAIEngine(cfg common.ClaudeConfig, logger arbor.ILogger) *aiEngine {
	return &aiEngine{
		config: cfg,
		logger: logger,
		retry:  NewRetryPolicy(),
		httpClient: &http.Client{
			Timeout: 0, // activity-based reads manage their own deadline
		},
	}
}

func (e *aiEngine) Name() string { return "ai-assisted" }

func (e *aiEngine) Capabilities() []string {
	return []string{CapabilityAIExtraction, CapabilityJavaScriptRendering}
}

// Initialize resolves the Anthropic API key and builds the client. A
// missing key fails initialize gracefully (spec §6), which drops this
// engine from the registry rather than crashing the process.
func (e *aiEngine) Initialize(ctx context.Context) error {
	apiKey, err := common.ResolveAPIKey("ANTHROPIC_API_KEY", e.config.APIKey)
	if err != nil {
		return fmt.Errorf("ai-assisted engine unavailable: %w", err)
	}

	if e.config.Model == "" {
		e.config.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(e.config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 45 * time.Second
	}
	e.timeout = timeout

	interval, err := time.ParseDuration(e.config.RateLimit)
	if err != nil || interval <= 0 {
		interval = 4 * time.Second
	}
	e.limiter = rate.NewLimiter(rate.Every(interval), 1)

	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	e.client = &c

	e.logger.Debug().Str("model", e.config.Model).Dur("timeout", timeout).Dur("rate_limit", interval).Msg("AI-assisted engine initialized")
	return nil
}

func (e *aiEngine) Cleanup() error {
	e.client = nil
	return nil
}

// Crawl fetches target over plain HTTP, extracts the cleaned text, then
// asks Claude to recover title/text/hierarchy from it.
func (e *aiEngine) Crawl(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	start := time.Now()

	rawHTML, statusCode, err := e.fetchRaw(ctx, target, strategy)
	if err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}
	if statusCode >= 400 {
		err := fmt.Errorf("HTTP %d fetching %s", statusCode, target)
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return NewFailedResult(target, e.Name(), "failed to parse HTML: "+err.Error()), err
	}

	fallbackTitle := strings.TrimSpace(doc.Find("title").First().Text())
	fallbackText := extractMainText(doc)
	promptText := fallbackText
	if len(promptText) > maxAIPromptChars {
		promptText = promptText[:maxAIPromptChars]
	}

	extraction, err := e.extract(ctx, target, fallbackTitle, promptText)
	if err != nil {
		e.logger.Warn().Str("url", target).Err(err).Msg("AI extraction failed, falling back to raw DOM text")
		extraction = &aiExtraction{
			Title:  fallbackTitle,
			Text:   fallbackText,
			Depth1: fallbackTitle,
		}
	}

	hierarchy := HierarchyNode{Depth1: extraction.Depth1, Depth2: extraction.Depth2, Depth3: extraction.Depth3}
	if hierarchy.Depth1 == "" {
		hierarchy = extractHierarchy(doc, extraction.Title)
	}

	elapsed := time.Since(start).Seconds()
	quality := aiQualityScore(doc, extraction.Text, len(rawHTML))

	meta := NewMetadata(e.Name(), elapsed, quality, len(extraction.Text))
	meta.Extra["ai_model"] = e.config.Model
	meta.Extra["raw_html_length"] = len(rawHTML)
	meta.Extra["fallback_used"] = extraction.Text == fallbackText && extraction.Title == fallbackTitle

	return CrawlResult{
		URL:       target,
		Title:     extraction.Title,
		Text:      extraction.Text,
		Hierarchy: hierarchy,
		Metadata:  meta,
		Status:    ResultStatusComplete,
		Timestamp: time.Now().UTC(),
	}, nil
}

// fetchRaw performs the same activity-bounded read as the HTTP engine; the
// AI engine still needs real bytes to reason over.
func (e *aiEngine) fetchRaw(ctx context.Context, target string, strategy CrawlStrategy) ([]byte, int, error) {
	connectTimeout := strategy.Timeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ai-crawler/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	activityTimeout := strategy.ActivityTimeout
	if activityTimeout <= 0 {
		activityTimeout = 15 * time.Second
	}
	maxTotal := strategy.MaxTotalTime
	if maxTotal <= 0 {
		maxTotal = 300 * time.Second
	}

	body, err := readWithActivityTimeout(ctx, resp.Body, activityTimeout, maxTotal, e.logger, target)
	return body, resp.StatusCode, err
}

// extract sends the cleaned page text to Claude and parses its JSON
// response into the title/text/hierarchy shape the rest of the pipeline
// expects.
func (e *aiEngine) extract(ctx context.Context, target, fallbackTitle, text string) (*aiExtraction, error) {
	if e.client == nil {
		return nil, fmt.Errorf("ai-assisted engine not initialized")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(timeoutCtx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	prompt := fmt.Sprintf(`You are extracting structured content from a web page at %s.
Given the raw visible text below, return ONLY a JSON object with this exact shape:
{"title": "...", "text": "cleaned main body text", "depth1": "page topic", "depth2": {"heading": ["sub-heading", ...]}, "depth3": {"sub-heading": ["sub-sub-heading", ...]}}
Fallback title if unclear: %q.

RAW TEXT:
%s`, target, fallbackTitle, text)

	resp, err := e.client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.config.Model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var raw strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			raw.WriteString(block.Text)
		}
	}

	jsonStr := extractJSONObject(raw.String())
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in model response")
	}

	var extraction aiExtraction
	if err := json.Unmarshal([]byte(jsonStr), &extraction); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	if extraction.Title == "" {
		extraction.Title = fallbackTitle
	}
	return &extraction, nil
}

// extractJSONObject returns the span from the first '{' to the last '}' in s,
// tolerating the model wrapping its answer in prose or a fenced code block.
// Text between two separate objects is kept inside the returned span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// CrawlWithRetry wraps Crawl with the shared retry/classification policy.
func (e *aiEngine) CrawlWithRetry(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	policy := *e.retry
	if strategy.MaxRetries > 0 {
		policy.MaxAttempts = strategy.MaxRetries
	}

	var lastResult CrawlResult
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		lastResult, lastErr = e.Crawl(ctx, target, strategy)
		if lastErr == nil {
			return lastResult, nil
		}

		if ClassifyError(0, lastErr) != ErrorClassTransient {
			return lastResult, lastErr
		}
		if attempt < policy.MaxAttempts-1 {
			backoff := policy.CalculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return NewFailedResult(target, e.Name(), ctx.Err().Error()), ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return NewFailedResult(target, e.Name(), lastErr.Error()), lastErr
}

// aiQualityScore uses a higher base floor than the HTTP engine (spec §4.1:
// "~50 for AI-assisted") but the same tier/bonus structure for consistency.
func aiQualityScore(doc *goquery.Document, text string, responseSize int) int {
	score := 50
	switch {
	case len(text) > 5000:
		score += 25
	case len(text) > 1000:
		score += 15
	case len(text) > 100:
		score += 5
	}
	if doc.Find("h1,h2,h3").Length() > 0 {
		score += 5
	}
	if doc.Find("a").Length() > 3 {
		score += 3
	}
	if doc.Find("meta[name='description']").Length() > 0 {
		score += 3
	}
	if responseSize > 5000 {
		score += 3
	}
	if score > 100 {
		score = 100
	}
	return score
}
