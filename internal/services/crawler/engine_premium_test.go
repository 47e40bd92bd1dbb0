package crawler

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsRateLimitErrorMatchesKnownMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{errors.New("quota exceeded for this project"), true},
		{errors.New("500 internal error"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := isRateLimitError(c.err); got != c.want {
			t.Errorf("isRateLimitError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestExtractRetryDelayParsesSuggestedWait(t *testing.T) {
	err := errors.New("rate limited. Please retry in 45.387061394s before trying again")
	delay := extractRetryDelay(err)
	want := time.Duration(45.387061394 * float64(time.Second))
	if delay != want {
		t.Errorf("extractRetryDelay = %v, want %v", delay, want)
	}

	if extractRetryDelay(errors.New("no delay mentioned")) != 0 {
		t.Error("expected 0 when no retry delay is present in the error text")
	}
	if extractRetryDelay(nil) != 0 {
		t.Error("expected 0 for a nil error")
	}
}

func TestGeminiBackoffPrefersAPIHintOverStaticDefault(t *testing.T) {
	withoutHint := geminiBackoff(0, 0)
	if withoutHint != geminiInitialBackoff {
		t.Errorf("expected the static default at attempt 0 with no API hint, got %v", withoutHint)
	}

	withHint := geminiBackoff(0, 10*time.Second)
	want := 15 * time.Second // API hint + 5s buffer
	if withHint != want {
		t.Errorf("expected API-suggested delay plus buffer, got %v want %v", withHint, want)
	}
}

func TestGeminiBackoffCapsAtMax(t *testing.T) {
	backoff := geminiBackoff(10, 0)
	if backoff > geminiMaxBackoff {
		t.Errorf("expected backoff capped at %v, got %v", geminiMaxBackoff, backoff)
	}
}

func TestFirstMarkdownHeadingFindsH1(t *testing.T) {
	text := "Some preamble\n# The Real Title\n## A subsection\nmore text"
	if got := firstMarkdownHeading(text); got != "The Real Title" {
		t.Errorf("firstMarkdownHeading = %q, want %q", got, "The Real Title")
	}
	if got := firstMarkdownHeading("no headings here"); got != "" {
		t.Errorf("expected empty string when no h1 marker is present, got %q", got)
	}
}

func TestExtractHierarchyFromMarkdownBuildsThreeLevels(t *testing.T) {
	text := "# Page Title\n## Section A\n### Sub A1\n### Sub A2\n## Section B\n### Sub B1\n"
	node := extractHierarchyFromMarkdown(text, "fallback title")

	if node.Depth1 != "Page Title" {
		t.Errorf("expected Depth1 to be overridden by the first h1, got %q", node.Depth1)
	}
	if len(node.Depth2["Page Title"]) != 2 {
		t.Errorf("expected 2 h2 sections under the h1, got %v", node.Depth2["Page Title"])
	}
	if len(node.Depth3["Section A"]) != 2 {
		t.Errorf("expected 2 h3 subsections under Section A, got %v", node.Depth3["Section A"])
	}
	if len(node.Depth3["Section B"]) != 1 {
		t.Errorf("expected 1 h3 subsection under Section B, got %v", node.Depth3["Section B"])
	}
}

func TestPremiumQualityScoreRewardsSourcesAndStructure(t *testing.T) {
	plain := premiumQualityScore("short text", 0)
	withSourcesAndHeadings := premiumQualityScore(
		"## Section\nlonger body text repeated many times to push length up. "+
			strings.Repeat("padding ", 1000), 4)

	if withSourcesAndHeadings <= plain {
		t.Errorf("expected sources+headings+length to score higher: plain=%d rich=%d", plain, withSourcesAndHeadings)
	}
	if withSourcesAndHeadings > 100 {
		t.Errorf("expected score capped at 100, got %d", withSourcesAndHeadings)
	}
}
