package crawler

// contentVocabulary maps each extraction target to its recognized
// synonyms (host-language plus English), transcribed from
// natural_language_parser.py's content_type_patterns table (spec §4.6).
var contentVocabulary = map[string][]string{
	"title":   {"title", "headline", "heading", "제목", "타이틀", "헤드라인"},
	"price":   {"price", "cost", "amount", "fee", "가격", "비용", "금액", "요금"},
	"body":    {"body", "content", "article", "text", "본문", "내용", "글", "텍스트"},
	"review":  {"review", "feedback", "comment", "rating", "리뷰", "후기", "평가", "댓글"},
	"summary": {"summary", "overview", "abstract", "gist", "요약", "개요", "핵심", "정리"},
	"image":   {"image", "photo", "picture", "이미지", "사진", "그림"},
	"link":    {"link", "url", "address", "링크", "주소"},
	"date":    {"date", "time", "published", "posted", "날짜", "시간", "작성일"},
}

// contentKeywordOrder fixes iteration order so the first keyword to reach
// the running-max confidence wins ties deterministically, mirroring the
// original dict-literal's declaration order.
var contentKeywordOrder = []string{"title", "price", "body", "review", "summary", "image", "link", "date"}

// extractionVerbs are co-occurring verbs that add a small confidence
// bonus to whichever target keyword they appear alongside.
var extractionVerbs = []string{"extract", "fetch", "pull", "grab", "get", "추출", "가져", "뽑아"}

// searchVerbs signal a platform-search intent (as opposed to a direct
// crawl) when no URL is present in the request text.
var searchVerbs = []string{"find", "search", "look up", "look for", "찾아줘", "검색", "찾기", "알아봐"}

// platformKeywords are known marketplaces/search platforms recognized by
// the search-intent detector.
var platformKeywords = []string{"amazon", "ebay", "walmart", "google", "coupang", "naver", "쿠팡", "네이버", "구글", "아마존"}
