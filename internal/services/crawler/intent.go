package crawler

import (
	"regexp"
	"strings"
)

var (
	// fullURLRe mirrors natural_language_parser.py's url_pattern (an
	// ASCII-only URL-legal character class plus percent-escapes, extended
	// with "/" for path segments) so a trailing host-language particle
	// like "...naver.com의" is not swallowed into the match.
	fullURLRe    = regexp.MustCompile(`https?://(?:[a-zA-Z0-9$_@.&+!*(),/-]|%[0-9a-fA-F]{2})+`)
	bareDomainRe = regexp.MustCompile(`(?:www\.)?[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}`)

	searchQueryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)find\s+(.+?)\s+(?:on|at|in)\s`),
		regexp.MustCompile(`(?i)search\s+for\s+(.+?)$`),
		regexp.MustCompile(`(?i)(.+?)\s+information$`),
	}
)

// IntentRouter reduces free-text input to a UnifiedIntent (spec §4.6).
type IntentRouter struct{}

// NewIntentRouter builds an Intent Router. It holds no state: every call
// is a pure function of its input text.
func NewIntentRouter() *IntentRouter {
	return &IntentRouter{}
}

// ExtractURLs pulls full http(s) URLs first, then bare-domain mentions not
// already covered by a full URL, normalizing and de-duplicating both.
func (r *IntentRouter) ExtractURLs(text string) []string {
	full := fullURLRe.FindAllString(text, -1)

	seen := make(map[string]bool, len(full))
	var out []string
	for _, u := range full {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, domain := range bareDomainRe.FindAllString(text, -1) {
		covered := false
		for _, u := range full {
			if strings.Contains(u, domain) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		normalized := domain
		if !strings.HasPrefix(normalized, "www.") {
			normalized = "www." + normalized
		}
		normalized = "https://" + normalized
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out
}

// DetectTargetContent scores the text against contentVocabulary and
// returns the best-matching target plus its confidence (spec §4.6 step 2).
func (r *IntentRouter) DetectTargetContent(text string) (string, float64) {
	lower := strings.ToLower(text)

	best := ""
	bestConfidence := 0.0

	for _, target := range contentKeywordOrder {
		confidence := 0.0
		for _, keyword := range contentVocabulary[target] {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if strings.Contains(lower, keyword+" only") || strings.Contains(lower, "only "+keyword) ||
				strings.Contains(lower, keyword+"만") || strings.Contains(lower, keyword+" 만") {
				confidence = maxF(confidence, 0.8)
			} else {
				confidence = maxF(confidence, 0.5)
			}
		}
		if confidence > 0 {
			for _, verb := range extractionVerbs {
				if strings.Contains(lower, verb) {
					confidence = minF(confidence+0.2, 1.0)
					break
				}
			}
		}
		if confidence > bestConfidence {
			bestConfidence = confidence
			best = target
		}
	}

	return best, clamp01(bestConfidence)
}

// AnalyzeUnifiedIntent is the combinator of spec §4.6 step 4: URL count ×
// extraction-keyword presence × platform+search-verb presence → RequestType.
func (r *IntentRouter) AnalyzeUnifiedIntent(text string) UnifiedIntent {
	urls := r.ExtractURLs(text)
	target, targetConfidence := r.DetectTargetContent(text)
	hasExtractionKeyword := target != ""

	switch len(urls) {
	case 0:
		if hasPlatformKeyword(text) && hasSearchVerb(text) {
			return r.analyzeSearchIntent(text)
		}
		return UnifiedIntent{
			RequestType: RequestTypeInvalid,
			URLs:        []string{},
			Confidence:  0,
			Metadata:    map[string]interface{}{"error": "no URL or search intent found"},
		}

	case 1:
		if hasExtractionKeyword {
			return UnifiedIntent{
				RequestType:   RequestTypeSelective,
				URLs:          urls,
				TargetContent: target,
				Confidence:    targetConfidence,
				Metadata:      map[string]interface{}{"processing_type": "selective_crawl"},
			}
		}
		return UnifiedIntent{
			RequestType: RequestTypeSingle,
			URLs:        urls,
			Confidence:  0.9,
			Metadata:    map[string]interface{}{"processing_type": "full_crawl"},
		}

	default:
		if hasExtractionKeyword {
			return UnifiedIntent{
				RequestType:   RequestTypeBulkSelective,
				URLs:          urls,
				TargetContent: target,
				Confidence:    minF(0.6+targetConfidence*0.2, 1.0),
				Metadata:      map[string]interface{}{"processing_type": "bulk_selective_crawl", "url_count": len(urls), "requires_implementation": true},
			}
		}
		return UnifiedIntent{
			RequestType: RequestTypeBulk,
			URLs:        urls,
			Confidence:  0.8,
			Metadata:    map[string]interface{}{"processing_type": "bulk_crawl", "url_count": len(urls)},
		}
	}
}

func (r *IntentRouter) analyzeSearchIntent(text string) UnifiedIntent {
	platform := detectPlatform(text)

	var query string
	for _, pattern := range searchQueryPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			query = strings.TrimSpace(m[1])
			break
		}
	}

	confidence := 0.3
	if platform != "" && query != "" {
		confidence = 0.7
	}

	return UnifiedIntent{
		RequestType: RequestTypeSearch,
		URLs:        []string{},
		SearchQuery: query,
		Platform:    platform,
		Confidence:  confidence,
		Metadata:    map[string]interface{}{"processing_type": "platform_search", "requires_implementation": true},
	}
}

func hasPlatformKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range platformKeywords {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func hasSearchVerb(text string) bool {
	lower := strings.ToLower(text)
	for _, v := range searchVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

func detectPlatform(text string) string {
	lower := strings.ToLower(text)
	for _, p := range platformKeywords {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
