package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestExtractJSONObjectFindsOutermostBraceSpan(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"here's the answer: {\"a\": 1} thanks", `{"a": 1}`},
		{"```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{"no braces here", ""},
		{"}{", ""},
	}
	for _, c := range cases {
		if got := extractJSONObject(c.in); got != c.want {
			t.Errorf("extractJSONObject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAIQualityScoreScalesWithTextAndSignals(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><head><meta name="description" content="d"></head><body><h1>T</h1><a href="/a">x</a><a href="/b">y</a><a href="/c">z</a><a href="/d">w</a></body></html>`,
	))
	if err != nil {
		t.Fatalf("failed to build test doc: %v", err)
	}

	short := aiQualityScore(doc, "short", 100)
	long := aiQualityScore(doc, strings.Repeat("word ", 2000), 10000)

	if long <= short {
		t.Errorf("expected a longer extraction with more signals to score higher: short=%d long=%d", short, long)
	}
	if long > 100 {
		t.Errorf("expected the score to be capped at 100, got %d", long)
	}
}
