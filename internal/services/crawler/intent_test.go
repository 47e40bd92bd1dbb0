package crawler

import "testing"

func TestExtractURLsFindsFullAndBareDomains(t *testing.T) {
	r := NewIntentRouter()
	urls := r.ExtractURLs("check https://example.com/a and also visit plain-site.org please")

	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	if urls[0] != "https://example.com/a" {
		t.Errorf("expected the full URL preserved first, got %q", urls[0])
	}
	if urls[1] != "https://www.plain-site.org" {
		t.Errorf("expected the bare domain normalized to https://www., got %q", urls[1])
	}
}

func TestExtractURLsDeduplicates(t *testing.T) {
	r := NewIntentRouter()
	urls := r.ExtractURLs("https://example.com/a and https://example.com/a again")
	if len(urls) != 1 {
		t.Errorf("expected duplicates collapsed, got %v", urls)
	}
}

func TestExtractURLsDoesNotDoubleCountDomainCoveredByFullURL(t *testing.T) {
	r := NewIntentRouter()
	urls := r.ExtractURLs("visit https://example.com/path for details about example.com")
	if len(urls) != 1 {
		t.Errorf("expected the bare-domain mention to be skipped as already covered, got %v", urls)
	}
}

func TestDetectTargetContentMatchesKeywordAndVerbBonus(t *testing.T) {
	r := NewIntentRouter()

	target, confidence := r.DetectTargetContent("please extract the price of this product")
	if target != "price" {
		t.Errorf("expected target=price, got %q", target)
	}
	if confidence <= 0.5 {
		t.Errorf("expected the extraction-verb bonus to push confidence above 0.5, got %v", confidence)
	}

	noVerbTarget, noVerbConfidence := r.DetectTargetContent("the price here")
	if noVerbTarget != "price" {
		t.Errorf("expected target=price without a verb too, got %q", noVerbTarget)
	}
	if noVerbConfidence >= confidence {
		t.Errorf("expected lower confidence without an extraction verb, got %v vs %v", noVerbConfidence, confidence)
	}
}

func TestDetectTargetContentReturnsEmptyWhenNoKeywordMatches(t *testing.T) {
	r := NewIntentRouter()
	target, confidence := r.DetectTargetContent("just a generic sentence")
	if target != "" || confidence != 0 {
		t.Errorf("expected no match, got target=%q confidence=%v", target, confidence)
	}
}

func TestAnalyzeUnifiedIntentSingleURLNoKeyword(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("https://example.com/page")
	if intent.RequestType != RequestTypeSingle {
		t.Errorf("expected single request type, got %q", intent.RequestType)
	}
}

func TestAnalyzeUnifiedIntentSingleURLWithExtractionKeyword(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("extract the price from https://example.com/product")
	if intent.RequestType != RequestTypeSelective {
		t.Errorf("expected selective request type, got %q", intent.RequestType)
	}
	if intent.TargetContent != "price" {
		t.Errorf("expected target_content=price, got %q", intent.TargetContent)
	}
}

func TestAnalyzeUnifiedIntentMultipleURLs(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("crawl https://example.com/a and https://example.com/b")
	if intent.RequestType != RequestTypeBulk {
		t.Errorf("expected bulk request type, got %q", intent.RequestType)
	}
	if len(intent.URLs) != 2 {
		t.Errorf("expected 2 urls carried through, got %v", intent.URLs)
	}
}

func TestAnalyzeUnifiedIntentMultipleURLsWithExtraction(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("extract the price from https://example.com/a and https://example.com/b")
	if intent.RequestType != RequestTypeBulkSelective {
		t.Errorf("expected bulk_selective request type, got %q", intent.RequestType)
	}
}

func TestAnalyzeUnifiedIntentNoURLNoSearchIsInvalid(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("nothing useful here")
	if intent.RequestType != RequestTypeInvalid {
		t.Errorf("expected invalid request type, got %q", intent.RequestType)
	}
}

func TestAnalyzeUnifiedIntentSearchIntentWithPlatformAndVerb(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("find wireless headphones on amazon")
	if intent.RequestType != RequestTypeSearch {
		t.Errorf("expected search request type, got %q", intent.RequestType)
	}
	if intent.Platform != "amazon" {
		t.Errorf("expected platform=amazon, got %q", intent.Platform)
	}
}

func TestExtractURLsTrimsTrailingHostLanguageParticle(t *testing.T) {
	r := NewIntentRouter()
	urls := r.ExtractURLs("https://naver.com의 제목만 추출해줘")
	if len(urls) != 1 || urls[0] != "https://naver.com" {
		t.Fatalf("expected the trailing Korean particle trimmed from the URL, got %v", urls)
	}
}

func TestDetectTargetContentMatchesKoreanKeywordAndOnlySuffix(t *testing.T) {
	r := NewIntentRouter()
	target, confidence := r.DetectTargetContent("제목만 추출해줘")
	if target != "title" {
		t.Errorf("expected the Korean '제목' keyword to match target=title, got %q", target)
	}
	if confidence < 0.8 {
		t.Errorf("expected the '만' suffix plus extraction verb to push confidence to at least 0.8, got %v", confidence)
	}
}

func TestAnalyzeUnifiedIntentKoreanSelectiveRequest(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("https://naver.com의 제목만 추출해줘")
	if intent.RequestType != RequestTypeSelective {
		t.Errorf("expected selective request type for a Korean single-URL extraction request, got %q", intent.RequestType)
	}
	if intent.TargetContent != "title" {
		t.Errorf("expected target_content=title, got %q", intent.TargetContent)
	}
	if len(intent.URLs) != 1 || intent.URLs[0] != "https://naver.com" {
		t.Errorf("expected exactly one URL extracted, got %v", intent.URLs)
	}
}

func TestAnalyzeUnifiedIntentKoreanSearchIntent(t *testing.T) {
	r := NewIntentRouter()
	intent := r.AnalyzeUnifiedIntent("쿠팡에서 콜라 찾아줘")
	if intent.RequestType != RequestTypeSearch {
		t.Errorf("expected search request type, got %q", intent.RequestType)
	}
	if intent.Platform != "쿠팡" {
		t.Errorf("expected platform=쿠팡, got %q", intent.Platform)
	}
}
