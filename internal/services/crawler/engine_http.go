package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/common"
)

// httpEngine is the static HTML/fast-path engine (spec §4.1, "http").
// It never runs JavaScript; it is the default tail of every engine
// priority list and the head of the simple_static one.
type httpEngine struct {
	client *http.Client
	config common.CrawlerConfig
	logger arbor.ILogger
	retry  *RetryPolicy
}

var _ Engine = (*httpEngine)(nil)

// NewHTTPEngine builds the static HTTP engine.
func NewHTTPEngine(cfg common.CrawlerConfig, logger arbor.ILogger) *httpEngine {
	return &httpEngine{
		client: &http.Client{},
		config: cfg,
		logger: logger,
		retry:  NewRetryPolicy(),
	}
}

func (e *httpEngine) Name() string { return "http" }

func (e *httpEngine) Initialize(ctx context.Context) error { return nil }

func (e *httpEngine) Cleanup() error { return nil }

func (e *httpEngine) Capabilities() []string {
	return []string{CapabilityFastStatic, CapabilityBulkProcessing}
}

func (e *httpEngine) Crawl(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, strategy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}
	req.Header.Set("User-Agent", e.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	body, err := readWithActivityTimeout(reqCtx, resp.Body, strategy.ActivityTimeout, strategy.MaxTotalTime, e.logger, target)
	if err != nil && len(body) == 0 {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := extractMainText(doc)
	hierarchy := extractHierarchy(doc, title)

	result := CrawlResult{
		URL:       target,
		Title:     title,
		Text:      text,
		Hierarchy: hierarchy,
		Status:    ResultStatusComplete,
		Timestamp: time.Now().UTC(),
	}

	executionTime := time.Since(start).Seconds()
	quality := httpQualityScore(doc, text, len(body))
	meta := NewMetadata(e.Name(), executionTime, quality, len(text))
	meta.Extra["http_status"] = resp.StatusCode
	meta.Extra["content_type"] = resp.Header.Get("Content-Type")
	meta.Extra["content_length"] = len(body)
	if strategy.ExtractLinks {
		meta.Extra["links"] = extractPageLinks(doc, target)
	}
	if strategy.ExtractImages {
		meta.Extra["images"] = extractPageImages(doc, target)
	}
	og, twitter, jsonLD := extractSocialMetadata(doc)
	if len(og) > 0 {
		meta.Extra["open_graph"] = og
	}
	if len(twitter) > 0 {
		meta.Extra["twitter_card"] = twitter
	}
	if len(jsonLD) > 0 {
		meta.Extra["json_ld"] = jsonLD
	}
	result.Metadata = meta

	return result, nil
}

func (e *httpEngine) CrawlWithRetry(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	policy := *e.retry
	if strategy.MaxRetries > 0 {
		policy.MaxAttempts = strategy.MaxRetries
	}

	var result CrawlResult
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		result, lastErr = e.Crawl(ctx, target, strategy)
		if lastErr == nil {
			return result, nil
		}
		if ClassifyError(0, lastErr) != ErrorClassTransient {
			return result, lastErr
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(policy.CalculateBackoff(attempt)):
		}
	}
	return result, lastErr
}

// readWithActivityTimeout reads resp.Body in 8KB chunks, resetting an
// inactivity clock on every chunk. It aborts on inactivity or on the hard
// wall-clock ceiling and returns whatever was read so far, mirroring
// requests_engine.py's _read_response_with_activity_timeout.
func readWithActivityTimeout(ctx context.Context, body io.Reader, activityTimeout, maxTotalTime time.Duration, logger arbor.ILogger, target string) ([]byte, error) {
	const chunkSize = 8 * 1024
	buf := make([]byte, chunkSize)
	var out bytes.Buffer

	start := time.Now()
	type readResult struct {
		n   int
		err error
	}
	chunkCh := make(chan readResult, 1)

	for {
		go func() {
			n, err := body.Read(buf)
			chunkCh <- readResult{n, err}
		}()

		select {
		case <-ctx.Done():
			return out.Bytes(), ctx.Err()
		case r := <-chunkCh:
			if r.n > 0 {
				out.Write(buf[:r.n])
			}
			if r.err != nil {
				if r.err == io.EOF {
					return out.Bytes(), nil
				}
				if out.Len() > 0 {
					return out.Bytes(), nil
				}
				return nil, r.err
			}
			if time.Since(start) > maxTotalTime {
				logger.Warn().Str("url", target).Dur("max_total_time", maxTotalTime).Msg("Activity read hit max total time, returning partial buffer")
				return out.Bytes(), nil
			}
		case <-time.After(activityTimeout):
			logger.Warn().Str("url", target).Dur("activity_timeout", activityTimeout).Msg("Activity read exceeded inactivity timeout")
			return out.Bytes(), nil
		}
	}
}

// extractMainText pulls text from main/article, falling back to body,
// after stripping script/style/nav/footer/aside chrome.
func extractMainText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	body := doc.Find("main, article, [role=main]").First()
	if body.Length() == 0 {
		body = doc.Find("body")
	}
	body.Find("nav, header, footer, aside").Remove()

	text := body.Text()
	return cleanWhitespace(text)
}

var (
	multiSpaceRegex   = regexp.MustCompile(`[ \t]+`)
	multiNewlineRegex = regexp.MustCompile(`\n{3,}`)
)

func cleanWhitespace(text string) string {
	text = multiSpaceRegex.ReplaceAllString(text, " ")
	text = multiNewlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// extractHierarchy builds the 3-level heading hierarchy from h1-h4 tags,
// grounded on requests_engine.py's _extract_hierarchy_from_html.
func extractHierarchy(doc *goquery.Document, title string) HierarchyNode {
	node := HierarchyNode{
		Depth1: title,
		Depth2: map[string][]string{},
		Depth3: map[string][]string{},
	}
	if node.Depth1 == "" {
		node.Depth1 = "untitled page"
	}

	var currentH1, currentH2 string
	doc.Find("h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		tag := goquery.NodeName(s)
		switch tag {
		case "h1":
			currentH1 = text
			if _, ok := node.Depth2[currentH1]; !ok {
				node.Depth2[currentH1] = []string{}
			}
		case "h2":
			currentH2 = text
			key := currentH1
			if key == "" {
				key = "other"
			}
			node.Depth2[key] = append(node.Depth2[key], currentH2)
		case "h3", "h4":
			key := currentH2
			if key == "" {
				key = currentH1
			}
			if key == "" {
				key = "other"
			}
			node.Depth3[key] = append(node.Depth3[key], text)
		}
	})

	return node
}

// httpQualityScore transcribes the Python original's scoring formula, using
// spec.md's literal text-length tiers (>5000/>1000/>100) rather than the
// original's (>3000/>1000/>300/>50) — see DESIGN.md Open Question resolution.
func httpQualityScore(doc *goquery.Document, text string, responseSize int) int {
	score := 40

	textLen := len(text)
	switch {
	case textLen > 5000:
		score += 25
	case textLen > 1000:
		score += 15
	case textLen > 100:
		score += 5
	}

	if doc.Find("title").Length() > 0 {
		score += 3
	}
	if doc.Find("h1, h2, h3").Length() > 0 {
		score += 5
	}
	if doc.Find("p").Length() > 0 {
		score += 4
	}
	if doc.Find("a").Length() > 0 {
		score += 3
	}
	if doc.Find("main, article, section").Length() > 0 {
		score += 5
	}

	if doc.Find("meta[name='description']").Length() > 0 {
		score += 3
	}
	if doc.Find("meta[name='keywords']").Length() > 0 {
		score += 2
	}
	if doc.Find("meta[property='og:title']").Length() > 0 {
		score += 2
	}
	if doc.Find("meta[property='og:description']").Length() > 0 {
		score += 3
	}

	switch {
	case responseSize > 10000:
		score += 5
	case responseSize > 5000:
		score += 3
	case responseSize > 1000:
		score += 1
	}

	if score > 100 {
		score = 100
	}
	return score
}

func extractPageLinks(doc *goquery.Document, baseURL string) []string {
	parsedBase, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		parsedHref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := parsedBase.ResolveReference(parsedHref).String()
		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	})
	return links
}

func extractPageImages(doc *goquery.Document, baseURL string) []string {
	parsedBase, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	var images []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		parsedSrc, err := url.Parse(src)
		if err != nil {
			return
		}
		images = append(images, parsedBase.ResolveReference(parsedSrc).String())
	})
	return images
}

// extractSocialMetadata mirrors html_scraper.go's ExtractMetadata (Open
// Graph / Twitter Card / JSON-LD) before that file was retired in favor of
// a colly-free implementation.
func extractSocialMetadata(doc *goquery.Document) (openGraph, twitterCard map[string]string, jsonLD []interface{}) {
	openGraph = map[string]string{}
	doc.Find("meta[property^='og:']").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" && content != "" {
			openGraph[prop] = content
		}
	})

	twitterCard = map[string]string{}
	doc.Find("meta[name^='twitter:']").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name != "" && content != "" {
			twitterCard[name] = content
		}
	})

	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if text == "" {
			return
		}
		var data interface{}
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return
		}
		switch v := data.(type) {
		case []interface{}:
			jsonLD = append(jsonLD, v...)
		case map[string]interface{}:
			jsonLD = append(jsonLD, v)
		}
	})

	return openGraph, twitterCard, jsonLD
}

// toMarkdown converts a cleaned HTML fragment to markdown, used by the
// selective extractor and any caller that wants a markdown representation
// rather than plain text.
func toMarkdown(baseURL, htmlFragment string) (string, error) {
	converter := md.NewConverter(baseURL, true, nil)
	return converter.ConvertString(htmlFragment)
}
