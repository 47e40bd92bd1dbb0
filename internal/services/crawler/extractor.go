package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractionResult is the Selective Extractor's output (spec §4.8).
type ExtractionResult struct {
	TargetContent    string                 `json:"target_content"`
	ExtractedData    map[string]interface{} `json:"extracted_data"`
	URL              string                 `json:"url,omitempty"`
	ExtractionMethod string                 `json:"extraction_method"` // html | text
	QualityScore     float64                `json:"quality_score"`
	Confidence       float64                `json:"confidence"`
	Error            string                 `json:"error,omitempty"`
}

var (
	priceCurrencyRe = regexp.MustCompile(`[$€£¥₩]\s*[\d,]+(?:\.\d{2})?`)
	priceUnitRe     = regexp.MustCompile(`(?i)[\d,]+\s*(?:usd|dollars?|won|eur|euros?)`)
	priceDigitsRe   = regexp.MustCompile(`[\d,]+`)

	ratingRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:/\s*5|stars?|★|⭐)`)

	dateISORe    = regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`)
	dateUSRe     = regexp.MustCompile(`\d{1,2}[-/.]\d{1,2}[-/.]\d{4}`)
	mdHeadingRe2 = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)
)

// ContentExtractor targets a single content facet (title, price, body,
// review, summary, image, link, or date) within an already-fetched page,
// per spec §4.8. It dispatches on whether the input looks like HTML or
// plain/markdown text, mirroring the original tool's is_html branch.
type ContentExtractor struct{}

// NewContentExtractor builds a Selective Extractor. It holds no state: all
// dispatch is a pure function of the (content, target) pair.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Extract pulls targetContent out of content (HTML or markdown/text) and
// scores the result (spec §4.8).
func (e *ContentExtractor) Extract(content, targetContent, pageURL string) ExtractionResult {
	isHTML := strings.HasPrefix(strings.TrimSpace(content), "<")

	var data map[string]interface{}
	var method string
	if isHTML {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return ExtractionResult{TargetContent: targetContent, URL: pageURL, Error: err.Error()}
		}
		method = "html"
		data = e.extractFromHTML(doc, targetContent, pageURL)
	} else {
		method = "text"
		data = e.extractFromText(content, targetContent)
	}

	return ExtractionResult{
		TargetContent:    targetContent,
		ExtractedData:    data,
		URL:              pageURL,
		ExtractionMethod: method,
		QualityScore:     extractionQuality(data, targetContent),
		Confidence:       extractionConfidence(data),
	}
}

func (e *ContentExtractor) extractFromHTML(doc *goquery.Document, targetContent, pageURL string) map[string]interface{} {
	switch targetContent {
	case "title":
		return extractTitleHTML(doc)
	case "price":
		return extractPriceHTML(doc)
	case "body":
		return extractBodyHTML(doc)
	case "review":
		return extractReviewHTML(doc)
	case "summary":
		return extractSummaryHTML(doc)
	case "image":
		return extractImageHTML(doc, pageURL)
	case "link":
		return extractLinkHTML(doc, pageURL)
	case "date":
		return extractDateHTML(doc)
	default:
		return extractFallbackHTML(doc)
	}
}

func (e *ContentExtractor) extractFromText(content, targetContent string) map[string]interface{} {
	switch targetContent {
	case "title":
		return extractTitleText(content)
	case "body":
		return extractBodyText(content)
	case "link":
		return extractLinkMarkdown(content)
	case "image":
		return extractImageMarkdown(content)
	default:
		cut := content
		if len(cut) > 500 {
			cut = cut[:500]
		}
		return map[string]interface{}{"text": cut, "type": "fallback"}
	}
}

// extractLinkMarkdown and extractImageMarkdown walk the goldmark AST rather
// than regexing `[text](url)`/`![alt](src)` by hand, so nested emphasis and
// escaped brackets inside link text don't throw off the match.
func extractLinkMarkdown(content string) map[string]interface{} {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var links []map[string]interface{}
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok || len(links) >= 20 {
			return ast.WalkContinue, nil
		}
		href := string(link.Destination)
		linkText := string(link.Text(src))
		if href == "" || linkText == "" {
			return ast.WalkContinue, nil
		}
		links = append(links, map[string]interface{}{
			"href": href, "text": linkText, "title": string(link.Title), "is_external": strings.HasPrefix(href, "http"), "confidence": 0.8,
		})
		return ast.WalkContinue, nil
	})

	var external, internal []map[string]interface{}
	for _, l := range links {
		if l["is_external"].(bool) {
			external = append(external, l)
		} else {
			internal = append(internal, l)
		}
	}
	return map[string]interface{}{
		"links": links, "total_links": len(links),
		"external_links": external, "internal_links": internal,
	}
}

func extractImageMarkdown(content string) map[string]interface{} {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var images []map[string]interface{}
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok || len(images) >= 10 {
			return ast.WalkContinue, nil
		}
		images = append(images, map[string]interface{}{
			"src": string(img.Destination), "alt": string(img.Text(src)), "title": string(img.Title), "confidence": 0.7,
		})
		return ast.WalkContinue, nil
	})

	var primary map[string]interface{}
	if len(images) > 0 {
		primary = images[0]
	}
	return map[string]interface{}{"images": images, "total_images": len(images), "primary_image": primary}
}

func extractTitleHTML(doc *goquery.Document) map[string]interface{} {
	var titles []map[string]interface{}

	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		titles = append(titles, map[string]interface{}{"type": "page_title", "text": t, "confidence": 0.9})
	}

	doc.Find("h1").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 3 {
			return false
		}
		text := strings.TrimSpace(s.Text())
		if len(text) > 5 {
			titles = append(titles, map[string]interface{}{"type": "main_heading", "text": text, "confidence": 0.8})
		}
		return true
	})

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		titles = append(titles, map[string]interface{}{"type": "og_title", "text": strings.TrimSpace(og), "confidence": 0.7})
	}

	doc.Find("h2").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 2 {
			return false
		}
		text := strings.TrimSpace(s.Text())
		if len(text) > 3 {
			titles = append(titles, map[string]interface{}{"type": "sub_heading", "text": text, "confidence": 0.6})
		}
		return true
	})

	primary := "no title found"
	if len(titles) > 0 {
		primary = titles[0]["text"].(string)
	}
	return map[string]interface{}{"titles": titles, "primary_title": primary, "total_found": len(titles)}
}

func extractTitleText(text string) map[string]interface{} {
	matches := mdHeadingRe2.FindAllStringSubmatch(text, -1)
	var titles []map[string]interface{}
	for _, m := range matches {
		level := len(m[1])
		titles = append(titles, map[string]interface{}{
			"type":       "h" + strconv.Itoa(level),
			"text":       strings.TrimSpace(m[2]),
			"confidence": 0.9 - float64(level)*0.1,
		})
	}
	primary := "no title found"
	if len(titles) > 0 {
		primary = titles[0]["text"].(string)
	}
	return map[string]interface{}{"titles": titles, "primary_title": primary, "total_found": len(titles)}
}

type priceEntry struct {
	rawText    string
	value      int
	confidence float64
}

func extractPriceHTML(doc *goquery.Document) map[string]interface{} {
	var found []priceEntry
	text := doc.Text()

	for _, m := range priceCurrencyRe.FindAllString(text, -1) {
		if v, ok := firstPriceValue(m); ok {
			found = append(found, priceEntry{rawText: m, value: v, confidence: 0.7})
		}
	}
	for _, m := range priceUnitRe.FindAllString(text, -1) {
		if v, ok := firstPriceValue(m); ok {
			found = append(found, priceEntry{rawText: m, value: v, confidence: 0.7})
		}
	}

	doc.Find(`[class*="price"],[id*="price"],[class*="cost"],[id*="cost"],[class*="amount"],.money,.currency`).Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if v, ok := firstPriceValue(t); ok {
			found = append(found, priceEntry{rawText: t, value: v, confidence: 0.8})
		}
	})

	sort.SliceStable(found, func(i, j int) bool { return found[i].confidence > found[j].confidence })
	seen := map[int]bool{}
	var unique []priceEntry
	for _, p := range found {
		if !seen[p.value] {
			unique = append(unique, p)
			seen[p.value] = true
		}
	}
	if len(unique) > 5 {
		unique = unique[:5]
	}

	prices := make([]map[string]interface{}, 0, len(unique))
	for _, p := range unique {
		prices = append(prices, map[string]interface{}{
			"raw_text":   p.rawText,
			"value":      p.value,
			"formatted":  formatThousands(p.value),
			"confidence": p.confidence,
		})
	}

	var primary map[string]interface{}
	minV, maxV := 0, 0
	if len(prices) > 0 {
		primary = prices[0]
		minV, maxV = unique[0].value, unique[0].value
		for _, p := range unique {
			if p.value < minV {
				minV = p.value
			}
			if p.value > maxV {
				maxV = p.value
			}
		}
	}

	return map[string]interface{}{
		"prices":        prices,
		"primary_price": primary,
		"total_found":   len(prices),
		"price_range":   map[string]interface{}{"min": minV, "max": maxV},
	}
}

func firstPriceValue(s string) (int, bool) {
	m := priceDigitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	digits := strings.ReplaceAll(m, ",", "")
	if len(digits) < 3 {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatThousands(v int) string {
	s := strconv.Itoa(v)
	var sb strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

var mainContentSelectors = []string{
	"main", "article", `[role="main"]`,
	".content", ".post-content", ".article-content", ".entry-content", ".post-body", ".content-body",
}

func extractBodyHTML(doc *goquery.Document) map[string]interface{} {
	var target *goquery.Selection
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			target = s
			break
		}
	}
	if target == nil {
		if b := doc.Find("body").First(); b.Length() > 0 {
			target = b
		} else {
			target = doc.Selection
		}
	}

	clone := target.Clone()
	clone.Find("script,style,nav,header,footer,aside").Remove()

	var paragraphs []map[string]interface{}
	clone.Find("p,div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 20 {
			paragraphs = append(paragraphs, map[string]interface{}{"text": text, "tag": goquery.NodeName(s), "length": len(text)})
		}
		return len(paragraphs) < 10
	})

	fullText := strings.TrimSpace(clone.Text())
	if len(fullText) > 2000 {
		fullText = fullText[:2000]
	}
	summary := fullText
	if len(fullText) > 200 {
		summary = fullText[:200] + "..."
	}

	return map[string]interface{}{
		"paragraphs":       paragraphs,
		"full_text":        fullText,
		"total_paragraphs": len(paragraphs),
		"total_length":     len(fullText),
		"summary":          summary,
	}
}

func extractBodyText(text string) map[string]interface{} {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") && len(line) > 10 {
			lines = append(lines, line)
		}
	}
	var paragraphs []map[string]interface{}
	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	for _, l := range lines[:limit] {
		paragraphs = append(paragraphs, map[string]interface{}{"text": l, "length": len(l)})
	}
	full := strings.Join(lines, "\n")
	if len(full) > 2000 {
		full = full[:2000]
	}
	return map[string]interface{}{"paragraphs": paragraphs, "full_text": full, "total_paragraphs": len(lines)}
}

func extractReviewHTML(doc *goquery.Document) map[string]interface{} {
	var reviews []map[string]interface{}
	doc.Find(`[class*="review"],[id*="review"],[class*="comment"],[id*="comment"],[class*="feedback"],.testimonial,[data-testid*="review"],[role="review"]`).
		EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= 5 {
				return false
			}
			text := strings.TrimSpace(s.Text())
			if len(text) <= 10 {
				return true
			}
			var rating interface{}
			if m := ratingRe.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					rating = v
				}
			}
			cut := text
			if len(cut) > 300 {
				cut = cut[:300]
			}
			reviews = append(reviews, map[string]interface{}{"text": cut, "rating": rating, "length": len(text), "confidence": 0.7})
			return true
		})

	var ratings []float64
	for _, m := range ratingRe.FindAllStringSubmatch(doc.Text(), -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 5 {
			ratings = append(ratings, v)
		}
	}
	var avg interface{}
	if len(ratings) > 0 {
		sum := 0.0
		for _, r := range ratings {
			sum += r
		}
		avg = sum / float64(len(ratings))
	}

	return map[string]interface{}{
		"reviews":        reviews,
		"total_reviews":  len(reviews),
		"ratings":        ratings,
		"average_rating": avg,
		"rating_count":   len(ratings),
	}
}

func extractSummaryHTML(doc *goquery.Document) map[string]interface{} {
	var parts []map[string]interface{}

	if c, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(c) != "" {
		parts = append(parts, map[string]interface{}{"type": "meta_description", "text": strings.TrimSpace(c), "confidence": 0.9})
	}
	if c, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok && strings.TrimSpace(c) != "" {
		parts = append(parts, map[string]interface{}{"type": "og_description", "text": strings.TrimSpace(c), "confidence": 0.8})
	}
	if p := doc.Find("p").First(); p.Length() > 0 {
		text := strings.TrimSpace(p.Text())
		if len(text) > 50 {
			parts = append(parts, map[string]interface{}{"type": "first_paragraph", "text": text, "confidence": 0.6})
		}
	}
	doc.Find(".summary,.abstract,.excerpt,.intro").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 20 {
			parts = append(parts, map[string]interface{}{"type": "summary_section", "text": text, "confidence": 0.7})
		}
	})

	primary := "no summary found"
	if len(parts) > 0 {
		primary = parts[0]["text"].(string)
	}
	return map[string]interface{}{"summaries": parts, "primary_summary": primary, "total_found": len(parts)}
}

func extractImageHTML(doc *goquery.Document, pageURL string) map[string]interface{} {
	var images []map[string]interface{}

	doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 10 {
			return false
		}
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return true
		}
		src = resolveAgainst(pageURL, src)
		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		confidence := 0.6
		if alt != "" || title != "" {
			confidence = 0.8
		}
		images = append(images, map[string]interface{}{
			"src": src, "alt": alt, "title": title,
			"width": attrOrNil(s, "width"), "height": attrOrNil(s, "height"),
			"confidence": confidence,
		})
		return true
	})

	if c, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && strings.TrimSpace(c) != "" {
		images = append([]map[string]interface{}{{
			"src": strings.TrimSpace(c), "alt": "Open Graph Image", "title": "", "type": "og_image", "confidence": 0.9,
		}}, images...)
	}

	var primary map[string]interface{}
	if len(images) > 0 {
		primary = images[0]
	}
	return map[string]interface{}{"images": images, "total_images": len(images), "primary_image": primary}
}

func attrOrNil(s *goquery.Selection, name string) interface{} {
	if v, ok := s.Attr(name); ok {
		return v
	}
	return nil
}

func extractLinkHTML(doc *goquery.Document, pageURL string) map[string]interface{} {
	var links []map[string]interface{}
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 20 {
			return false
		}
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if href == "" || text == "" {
			return true
		}
		href = resolveAgainst(pageURL, href)
		title, _ := s.Attr("title")
		isExternal := strings.HasPrefix(href, "http") && pageURL != "" && !strings.Contains(href, pageURL)
		links = append(links, map[string]interface{}{
			"href": href, "text": text, "title": title, "is_external": isExternal, "confidence": 0.8,
		})
		return true
	})

	var external, internal []map[string]interface{}
	for _, l := range links {
		if l["is_external"].(bool) {
			external = append(external, l)
		} else {
			internal = append(internal, l)
		}
	}
	return map[string]interface{}{
		"links": links, "total_links": len(links),
		"external_links": external, "internal_links": internal,
	}
}

func resolveAgainst(base, ref string) string {
	if base == "" || !strings.HasPrefix(ref, "/") {
		return ref
	}
	parsedBase, err := url.Parse(base)
	if err != nil {
		return ref
	}
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return parsedBase.ResolveReference(parsedRef).String()
}

var dateMetaSelectors = []string{
	`meta[name="date"]`,
	`meta[property="article:published_time"]`,
	`meta[property="article:modified_time"]`,
	`meta[name="publish_date"]`,
	`meta[name="created"]`,
}

func extractDateHTML(doc *goquery.Document) map[string]interface{} {
	var dates []map[string]interface{}

	for _, sel := range dateMetaSelectors {
		if c, ok := doc.Find(sel).First().Attr("content"); ok && c != "" {
			dates = append(dates, map[string]interface{}{"type": "meta_date", "raw_date": c, "source": sel, "confidence": 0.9})
		}
	}

	doc.Find("time").Each(func(_ int, s *goquery.Selection) {
		if dt, ok := s.Attr("datetime"); ok && dt != "" {
			dates = append(dates, map[string]interface{}{
				"type": "time_tag", "raw_date": dt, "display_text": strings.TrimSpace(s.Text()), "confidence": 0.8,
			})
		}
	})

	text := doc.Text()
	for _, re := range []*regexp.Regexp{dateISORe, dateUSRe} {
		matches := re.FindAllString(text, -1)
		if len(matches) > 3 {
			matches = matches[:3]
		}
		for _, m := range matches {
			dates = append(dates, map[string]interface{}{"type": "text_pattern", "raw_date": m, "confidence": 0.6})
		}
	}

	var primary map[string]interface{}
	if len(dates) > 0 {
		primary = dates[0]
	}
	return map[string]interface{}{"dates": dates, "primary_date": primary, "total_found": len(dates)}
}

func extractFallbackHTML(doc *goquery.Document) map[string]interface{} {
	text := doc.Text()
	if len(text) > 1000 {
		text = text[:1000]
	}
	return map[string]interface{}{"text": text, "type": "fallback_extraction", "message": "this target_content is not yet supported, returning full text"}
}

// extractionQuality mirrors _calculate_extraction_quality's per-target bonus
// tiers on top of a 50-point base.
func extractionQuality(data map[string]interface{}, targetContent string) float64 {
	if data == nil {
		return 0
	}
	score := 50.0

	switch targetContent {
	case "title":
		titles, _ := data["titles"].([]map[string]interface{})
		if len(titles) > 0 {
			score += minF(float64(len(titles))*10, 40)
			if c, ok := titles[0]["confidence"].(float64); ok && c > 0.8 {
				score += 10
			}
		}
	case "price":
		prices, _ := data["prices"].([]map[string]interface{})
		if len(prices) > 0 {
			score += minF(float64(len(prices))*15, 45)
			if c, ok := prices[0]["confidence"].(float64); ok && c > 0.7 {
				score += 5
			}
		}
	case "body":
		paragraphs, _ := data["paragraphs"].([]map[string]interface{})
		totalLength, _ := data["total_length"].(int)
		if len(paragraphs) > 0 && totalLength > 100 {
			score += minF(float64(len(paragraphs))*5, 30)
			score += minF(float64(totalLength)/100, 20)
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// extractionConfidence averages per-item confidences for the fields the
// original supports a confidence readout for, defaulting to 0.5 otherwise.
func extractionConfidence(data map[string]interface{}) float64 {
	if data == nil {
		return 0
	}
	if titles, ok := data["titles"].([]map[string]interface{}); ok && len(titles) > 0 {
		return avgConfidence(titles)
	}
	if prices, ok := data["prices"].([]map[string]interface{}); ok && len(prices) > 0 {
		return avgConfidence(prices)
	}
	if paragraphs, ok := data["paragraphs"].([]map[string]interface{}); ok {
		if len(paragraphs) > 3 {
			return 0.8
		}
		return 0.6
	}
	return 0.5
}

func avgConfidence(items []map[string]interface{}) float64 {
	sum := 0.0
	for _, it := range items {
		if c, ok := it["confidence"].(float64); ok {
			sum += c
		} else {
			sum += 0.5
		}
	}
	return sum / float64(len(items))
}
