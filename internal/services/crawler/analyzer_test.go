package crawler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestAnalyzeHTMLClassifiesSimpleStaticPage(t *testing.T) {
	a := NewSiteAnalyzer(arbor.NewLogger())
	html := "<html><head><title>Plain</title></head><body><p>Just some static text, nothing fancy.</p></body></html>"

	analysis := a.AnalyzeHTML("https://example.com/", html, http.Header{})

	if analysis.SiteType != SiteTypeSimpleStatic {
		t.Errorf("expected simple_static classification, got %q", analysis.SiteType)
	}
	if analysis.RequiresJS {
		t.Errorf("plain HTML should not require JS")
	}
	if analysis.ContentLoading != LoadingStatic {
		t.Errorf("expected static loading pattern, got %q", analysis.ContentLoading)
	}
}

func TestAnalyzeHTMLClassifiesComplexSPA(t *testing.T) {
	a := NewSiteAnalyzer(arbor.NewLogger())

	var scripts strings.Builder
	for i := 0; i < 15; i++ {
		scripts.WriteString("<script>fetch('/api'); addEventListener('click', x => x); document.querySelector('a');</script>")
	}
	html := "<html><body data-reactroot>" + scripts.String() + "<div id=\"__NEXT_DATA__\">{}</div></body></html>"

	analysis := a.AnalyzeHTML("https://spa.example.com/", html, http.Header{})

	if analysis.SiteType != SiteTypeComplexSPA {
		t.Errorf("expected complex_spa classification for a heavily scripted React/Next page, got %q", analysis.SiteType)
	}
	if !analysis.RequiresJS {
		t.Errorf("expected RequiresJS=true for a page with this much JS activity")
	}
}

func TestAnalyzeHTMLAntiBotOverridesSiteType(t *testing.T) {
	a := NewSiteAnalyzer(arbor.NewLogger())
	html := "<html><body>cloudflare challenge recaptcha grecaptcha captcha perimeterx</body></html>"
	headers := http.Header{"X-RateLimit-Remaining": []string{"0"}}

	analysis := a.AnalyzeHTML("https://protected.example.com/", html, headers)

	if analysis.AntiBotRiskLevel != AntiBotRiskVeryHigh && analysis.AntiBotRiskLevel != AntiBotRiskHigh {
		t.Fatalf("expected a high/very-high anti-bot risk level, got %q", analysis.AntiBotRiskLevel)
	}
	if analysis.SiteType != SiteTypeAntiBotHeavy {
		t.Errorf("expected anti-bot risk to override site type to anti_bot_heavy, got %q", analysis.SiteType)
	}
}

func TestAnalyzeHTMLDetectsInfiniteScroll(t *testing.T) {
	a := NewSiteAnalyzer(arbor.NewLogger())
	html := `<html><body class="infinite-scroll-container">lazy-load more items</body></html>`

	analysis := a.AnalyzeHTML("https://feed.example.com/", html, http.Header{})

	if analysis.ContentLoading != LoadingInfiniteScroll {
		t.Errorf("expected infinite_scroll content loading, got %q", analysis.ContentLoading)
	}
	if !analysis.RequiresScrolling {
		t.Errorf("expected RequiresScrolling=true")
	}
}

func TestAnalyzeHTMLTruncatesOversizedSamples(t *testing.T) {
	a := NewSiteAnalyzer(arbor.NewLogger())
	huge := strings.Repeat("a", 60000)

	// Should not panic or hang on an oversized sample; the 50000-byte cap
	// is applied before any of the regex scans run.
	_ = a.AnalyzeHTML("https://big.example.com/", huge, http.Header{})
}
