package crawler

import (
	"regexp"
	"strings"
)

// uiChromePhrases are icon/button placeholder strings stripped verbatim
// from crawled text, generalizing helpers.go's filterUIElements selector
// list from Jira/Confluence UI chrome to generic web UI chrome (spec §4.7).
var uiChromePhrases = []string{
	"Skip to content", "Skip to main content", "Toggle navigation",
	"Toggle menu", "Open menu", "Close menu", "Back to top",
	"Accept cookies", "Accept all cookies", "Subscribe to our newsletter",
	"Share this article", "Read more", "Click here",
}

var (
	mailtoLinkRe        = regexp.MustCompile(`\[([^\]]*)\]\(mailto:[^)]*\)`)
	jsLinkRe            = regexp.MustCompile(`\[([^\]]*)\]\(javascript:[^)]*\)`)
	anchorOnlyLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(#[^)]*\)`)
	listMarkerRe        = regexp.MustCompile(`(?m)^[ \t]*[•‣▪·][ \t]*`)
	blankLineRunRe      = regexp.MustCompile(`\n{3,}`)
	navFooterBlockRe    = regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>|<footer[^>]*>.*?</footer>`)
)

// TextPostProcessor strips UI chrome, collapses dead links, and normalizes
// whitespace in a crawl result's text (spec §4.7).
type TextPostProcessor struct{}

// NewTextPostProcessor builds a Text Post-processor. It has no state: all
// of its behavior is pure text transformation.
func NewTextPostProcessor() *TextPostProcessor {
	return &TextPostProcessor{}
}

// Process applies cleanup to result.Text when cleanText is true and
// records the processing metrics spec §4.7 requires. Results that are
// already failed, or requests with cleanText=false, pass through untouched.
func (p *TextPostProcessor) Process(result CrawlResult, cleanText bool) CrawlResult {
	if !cleanText || result.Status != ResultStatusComplete {
		return result
	}

	original := result.Text
	originalLen := len(original)

	afterNavFooter := navFooterBlockRe.ReplaceAllString(original, "")

	linksBefore := len(mailtoLinkRe.FindAllString(afterNavFooter, -1)) +
		len(jsLinkRe.FindAllString(afterNavFooter, -1)) +
		len(anchorOnlyLinkRe.FindAllString(afterNavFooter, -1))
	afterLinks := mailtoLinkRe.ReplaceAllString(afterNavFooter, "$1")
	afterLinks = jsLinkRe.ReplaceAllString(afterLinks, "$1")
	afterLinks = anchorOnlyLinkRe.ReplaceAllString(afterLinks, "$1")
	afterLinks = listMarkerRe.ReplaceAllString(afterLinks, "- ")

	cleaned := afterLinks
	chromeHits := 0
	for _, phrase := range uiChromePhrases {
		if strings.Contains(cleaned, phrase) {
			chromeHits++
			cleaned = strings.ReplaceAll(cleaned, phrase, "")
		}
	}

	cleaned = blankLineRunRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	processedLen := len(cleaned)
	reductionRatio := 0.0
	if originalLen > 0 {
		reductionRatio = float64(originalLen-processedLen) / float64(originalLen)
		if reductionRatio < 0 {
			reductionRatio = 0
		}
	}
	retentionRatio := 1 - reductionRatio

	markdownReductionRatio := 0.0
	if linksBefore > 0 {
		markdownReductionRatio = 1.0 // every dead link found was collapsed
	}
	chromeRemovalRatio := 0.0
	if len(uiChromePhrases) > 0 {
		chromeRemovalRatio = float64(chromeHits) / float64(len(uiChromePhrases))
	}

	qualityScore := clamp01((retentionRatio + markdownReductionRatio + chromeRemovalRatio) / 3)

	result.Text = cleaned
	if result.Metadata.Extra == nil {
		result.Metadata.Extra = map[string]interface{}{}
	}
	result.Metadata.Extra["post_processing_applied"] = true
	result.Metadata.Extra["original_text_length"] = originalLen
	result.Metadata.Extra["processed_text_length"] = processedLen
	result.Metadata.Extra["text_reduction_ratio"] = reductionRatio
	result.Metadata.Extra["processing_quality_score"] = qualityScore
	result.Metadata.TextLength = processedLen

	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
