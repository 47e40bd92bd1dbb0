package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/common"
)

// stealthScript is injected into every new document before any page script
// runs, so automation fingerprints are gone before a site's own detection
// code executes. Adapted from the extension-based scraper's stealth probe.
const stealthScript = `
(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	window.chrome = window.chrome || { runtime: {} };
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);
	const getParameter = WebGLRenderingContext.prototype.getParameter;
	WebGLRenderingContext.prototype.getParameter = function (parameter) {
		if (parameter === 37445) return 'Intel Inc.';
		if (parameter === 37446) return 'Intel Iris OpenGL Engine';
		return getParameter.apply(this, [parameter]);
	};
})();
`

// pageSample is one ~1s poll of the rendering page's state, used to drive
// the activity-based abort loop (spec §4.1's browser adapter algorithm).
type pageSample struct {
	htmlLength  int
	scriptCount int
	imageCount  int
	readyState  string
}

// browserEngine is the headless-chromium engine adapter. It shares one
// browser process (one allocator context) across calls; each Crawl opens
// a fresh tab so concurrent crawls don't interfere with each other.
type browserEngine struct {
	config       common.CrawlerConfig
	logger       arbor.ILogger
	retry        *RetryPolicy
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserCancel context.CancelFunc
}

var _ Engine = (*browserEngine)(nil)

// NewBrowserEngine constructs the headless-browser engine adapter.
func NewBrowserEngine(cfg common.CrawlerConfig, logger arbor.ILogger) *browserEngine {
	return &browserEngine{
		config: cfg,
		logger: logger,
		retry:  NewRetryPolicy(),
	}
}

func (e *browserEngine) Name() string { return "browser" }

func (e *browserEngine) Capabilities() []string {
	return []string{CapabilityJavaScriptRendering, CapabilityInfiniteScroll, CapabilityAntiBotBypass}
}

// buildAllocatorOptions assembles the stealth flag set a real browser
// session needs to avoid trivial automation fingerprinting.
func buildAllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(1366, 900),
	)
	return opts
}

// Initialize launches the shared browser process. If Chrome can't be
// started, the registry drops this engine (spec §4.1 EngineUnavailable).
func (e *browserEngine) Initialize(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), buildAllocatorOptions(e.config.BrowserHeadless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	probeCtx, probeCancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		allocCancel()
		browserCancel()
		return fmt.Errorf("browser engine unavailable: %w", err)
	}

	e.allocCtx, e.allocCancel = allocCtx, allocCancel
	e.browserCtx, e.browserCancel = browserCtx, browserCancel
	return nil
}

// Cleanup shuts down the shared browser process. Idempotent.
func (e *browserEngine) Cleanup() error {
	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocCancel != nil {
		e.allocCancel()
		e.allocCancel = nil
	}
	return nil
}

// Crawl renders target in a fresh tab, samples page state at ~1s
// intervals until the activity-timeout/ceiling algorithm says to stop,
// then extracts the same normalized fields the HTTP engine produces.
func (e *browserEngine) Crawl(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
	start := time.Now()

	if e.browserCtx == nil {
		return NewFailedResult(target, e.Name(), "browser engine not initialized"), fmt.Errorf("browser engine not initialized")
	}

	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx)
	defer tabCancel()

	totalCtx, totalCancel := context.WithTimeout(tabCtx, strategy.MaxTotalTime)
	defer totalCancel()

	navTimeout := strategy.Timeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(totalCtx, navTimeout)
	defer navCancel()

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := emulation.SetUserAgentOverride(e.userAgent()).Do(c)
			return err
		}),
		chromedp.Navigate(target),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		errClass := ClassifyError(0, err)
		e.logger.Warn().Str("url", target).Err(err).Str("class", string(errClass)).Msg("Browser navigation failed")
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	if err := chromedp.Run(totalCtx, chromedp.Evaluate(stealthScript, nil)); err != nil {
		e.logger.Debug().Str("url", target).Err(err).Msg("Stealth script injection failed, continuing")
	}

	waitUntilNetworkIdle := strategy.AntiBotMode
	if err := e.waitForActivitySettled(totalCtx, strategy, waitUntilNetworkIdle); err != nil {
		e.logger.Warn().Str("url", target).Err(err).Msg("Activity-timeout wait ended with error")
	}

	var htmlContent, pageTitle string
	if err := chromedp.Run(totalCtx,
		chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery),
		chromedp.Title(&pageTitle),
	); err != nil {
		return NewFailedResult(target, e.Name(), err.Error()), err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return NewFailedResult(target, e.Name(), "failed to parse rendered HTML: "+err.Error()), err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = pageTitle
	}
	text := extractMainText(doc)
	hierarchy := extractHierarchy(doc, title)
	quality := browserQualityScore(doc, text, len(htmlContent))
	elapsed := time.Since(start).Seconds()

	meta := NewMetadata(e.Name(), elapsed, quality, len(text))
	meta.Extra["rendered_html_length"] = len(htmlContent)
	meta.Extra["anti_bot_mode"] = strategy.AntiBotMode
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

// waitForActivitySettled implements spec §4.1's browser activity-timeout
// algorithm: sample page state at ~1s intervals; HTML growth over 1KB or a
// readyState change resets the inactivity clock; exit once inactivity has
// exceeded activity_timeout, at least 3 consecutive samples were idle, and
// readyState is "complete" — or once max_total_time has elapsed.
func (e *browserEngine) waitForActivitySettled(ctx context.Context, strategy CrawlStrategy, requireNetworkIdle bool) error {
	activityTimeout := strategy.ActivityTimeout
	if activityTimeout <= 0 {
		activityTimeout = 15 * time.Second
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var last pageSample
	lastChange := time.Now()
	idleSamples := 0
	minIdleSamples := 3

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample, err := e.sample(ctx)
			if err != nil {
				return err
			}

			growth := sample.htmlLength - last.htmlLength
			changed := last.readyState != "" && sample.readyState != last.readyState
			if growth > 1024 || changed || last.readyState == "" {
				lastChange = time.Now()
				idleSamples = 0
			} else {
				idleSamples++
			}
			last = sample

			inactiveFor := time.Since(lastChange)
			readyComplete := sample.readyState == "complete"
			settled := inactiveFor >= activityTimeout && idleSamples >= minIdleSamples && readyComplete
			if !requireNetworkIdle {
				if settled {
					return nil
				}
			} else if settled && idleSamples >= minIdleSamples+2 {
				return nil
			}
		}
	}
}

func (e *browserEngine) sample(ctx context.Context) (pageSample, error) {
	var htmlLength, scriptCount, imageCount int
	var readyState string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.documentElement.outerHTML.length`, &htmlLength),
		chromedp.Evaluate(`document.scripts.length`, &scriptCount),
		chromedp.Evaluate(`document.images.length`, &imageCount),
		chromedp.Evaluate(`document.readyState`, &readyState),
	)
	if err != nil {
		return pageSample{}, err
	}
	return pageSample{htmlLength: htmlLength, scriptCount: scriptCount, imageCount: imageCount, readyState: readyState}, nil
}

func (e *browserEngine) userAgent() string {
	if e.config.UserAgent != "" {
		return e.config.UserAgent
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
}

// CrawlWithRetry wraps Crawl per the shared retry policy (spec §4.1):
// permanent-per-URL errors stop immediately, transient errors back off and
// retry up to strategy.MaxRetries.
func (e *browserEngine) CrawlWithRetry(ctx context.Context, target string, strategy CrawlStrategy) (CrawlResult, error) {
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
			e.logger.Debug().Str("url", target).Err(lastErr).Msg("Permanent browser error, not retrying")
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

// browserQualityScore mirrors httpQualityScore's formula over the rendered
// DOM, using the same spec.md literal text-length tiers for cross-engine
// consistency (see DESIGN.md Open Question resolution on quality scoring).
func browserQualityScore(doc *goquery.Document, text string, renderedSize int) int {
	return httpQualityScore(doc, text, renderedSize)
}
