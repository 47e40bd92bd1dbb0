package crawler

import "testing"

func TestCreateDocumentParsesHTML(t *testing.T) {
	doc, err := CreateDocument(`<html><body><p>hi</p></body></html>`)
	if err != nil {
		t.Fatalf("CreateDocument returned error: %v", err)
	}
	if doc.Find("p").Text() != "hi" {
		t.Errorf("expected parsed paragraph text, got %q", doc.Find("p").Text())
	}
}

func TestFilterUIElementsRemovesToolbarAndButtons(t *testing.T) {
	doc := mustDoc(t, `<div id="root">
		<button>Edit</button>
		<div class="toolbar">toolbar stuff</div>
		<p>real content</p>
	</div>`)

	filtered := filterUIElements(doc.Find("#root"))
	html, err := filtered.Html()
	if err != nil {
		t.Fatalf("Html() returned error: %v", err)
	}
	if containsSubstr(html, "Edit") || containsSubstr(html, "toolbar stuff") {
		t.Errorf("expected UI chrome stripped, got %q", html)
	}
	if !containsSubstr(html, "real content") {
		t.Errorf("expected real content preserved, got %q", html)
	}
}

func TestExtractTextFromDocUsesFirstMatchingSelector(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>Title</h1><p class="body">Body text</p></body></html>`)

	text := ExtractTextFromDoc(doc, []string{".missing", "h1", ".body"})
	if text != "Title" {
		t.Errorf("expected the first matching selector to win, got %q", text)
	}

	if got := ExtractTextFromDoc(doc, []string{".nope"}); got != "" {
		t.Errorf("expected empty string when nothing matches, got %q", got)
	}
}

func TestExtractMultipleTextsFromDocDedupsAndStopsAtFirstSelectorWithResults(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<span class="label">one</span>
		<span class="label">two</span>
		<span class="label">one</span>
		<span class="other">three</span>
	</body></html>`)

	texts := ExtractMultipleTextsFromDoc(doc, []string{".label", ".other"})
	if len(texts) != 2 {
		t.Fatalf("expected deduped [one two], got %v", texts)
	}
	if texts[0] != "one" || texts[1] != "two" {
		t.Errorf("expected order preserved with dedup, got %v", texts)
	}
}

func TestExtractCleanedHTMLStripsUIElements(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="content"><button>Edit</button><p>kept text</p></div>
	</body></html>`)

	html := ExtractCleanedHTML(doc, []string{".missing", ".content"})
	if containsSubstr(html, "Edit") {
		t.Errorf("expected the button stripped from cleaned HTML, got %q", html)
	}
	if !containsSubstr(html, "kept text") {
		t.Errorf("expected kept text preserved, got %q", html)
	}
}

func TestExtractDateFromDocPrefersDatetimeAttribute(t *testing.T) {
	doc := mustDoc(t, `<html><body><time datetime="2026-01-15">Jan 15</time></body></html>`)

	date := ExtractDateFromDoc(doc, []string{"time"})
	if date != "2026-01-15T00:00:00Z" {
		t.Errorf("expected normalized RFC3339 date, got %q", date)
	}
}

func TestExtractDateFromDocFallsBackToElementText(t *testing.T) {
	doc := mustDoc(t, `<html><body><span class="published">Jan 2, 2026</span></body></html>`)

	date := ExtractDateFromDoc(doc, []string{".published"})
	if date != "2026-01-02T00:00:00Z" {
		t.Errorf("expected the element text parsed and normalized, got %q", date)
	}
}

func TestExtractDateFromDocReturnsEmptyWhenNothingMatches(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>no dates here</p></body></html>`)
	if got := ExtractDateFromDoc(doc, []string{".missing"}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNormalizeDateToRFC3339HandlesMultipleFormats(t *testing.T) {
	cases := map[string]string{
		"2026-01-15":        "2026-01-15T00:00:00Z",
		"2026/01/15":        "2026-01-15T00:00:00Z",
		"01/15/2026":        "2026-01-15T00:00:00Z",
		"15 Jan 2026":       "2026-01-15T00:00:00Z",
		"January 15, 2026":  "2026-01-15T00:00:00Z",
		"not a date at all": "",
	}
	for in, want := range cases {
		if got := normalizeDateToRFC3339(in); got != want {
			t.Errorf("normalizeDateToRFC3339(%q) = %q, want %q", in, got, want)
		}
	}
}
