package crawler

import (
	"encoding/json"
	"time"
)

// ResultStatus is the terminal state of a single-URL crawl
type ResultStatus string

const (
	ResultStatusComplete ResultStatus = "complete"
	ResultStatusFailed   ResultStatus = "failed"
)

// ContentQuality buckets the quality score into a coarse label
type ContentQuality string

const (
	ContentQualityHigh   ContentQuality = "high"
	ContentQualityMedium ContentQuality = "medium"
	ContentQualityLow    ContentQuality = "low"
)

// HierarchyNode holds the 3-level heading hierarchy extracted from a page.
// Depth1 is the page's top-level label (its title or main heading), Depth2 maps a top-level heading to
// its immediate sub-sections, Depth3 maps a sub-section heading to its own
// children. Pages with a flatter structure simply leave the deeper maps empty.
type HierarchyNode struct {
	Depth1 string              `json:"depth1,omitempty"`
	Depth2 map[string][]string `json:"depth2,omitempty"`
	Depth3 map[string][]string `json:"depth3,omitempty"`
}

// Metadata is the typed result envelope for the required keys in spec §4.1,
// plus one free-form field for engine-specific diagnostics. A typed struct
// is used instead of an open map so required keys can't silently go missing between engines.
type Metadata struct {
	CrawlerUsed          string                 `json:"crawler_used"`
	ProcessingTime       string                 `json:"processing_time"` // human string, e.g. "3.2s"
	ExecutionTime        float64                `json:"execution_time"`  // seconds
	QualityScore         int                    `json:"quality_score"`   // 0-100
	ContentQuality       ContentQuality         `json:"content_quality"`
	ExtractionConfidence float64                `json:"extraction_confidence"` // quality_score / 100
	TextLength           int                    `json:"text_length"`

	AttemptedEngines       []string `json:"attempted_engines,omitempty"`
	SuccessfulEngineIndex  int      `json:"successful_engine_index,omitempty"`
	TotalAvailableEngines  int      `json:"total_available_engines,omitempty"`
	EngineUsed             string   `json:"engine_used,omitempty"`
	EngineSelectionReason  string   `json:"engine_selection_reason,omitempty"`
	AllEnginesFailed       bool     `json:"all_engines_failed,omitempty"`
	FallbackStrategyUsed   bool     `json:"fallback_strategy_used,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"` // engine-specific diagnostic sub-object
}

// computeContentQuality derives the ContentQuality label from a 0-100 score
func computeContentQuality(score int) ContentQuality {
	switch {
	case score > 80:
		return ContentQualityHigh
	case score > 50:
		return ContentQualityMedium
	default:
		return ContentQualityLow
	}
}

// NewMetadata builds a Metadata envelope, deriving the quality-dependent
// fields from a single score so every engine reports them consistently.
func NewMetadata(crawlerUsed string, executionTime float64, qualityScore, textLength int) Metadata {
	if qualityScore > 100 {
		qualityScore = 100
	}
	if qualityScore < 0 {
		qualityScore = 0
	}
	return Metadata{
		CrawlerUsed:          crawlerUsed,
		ProcessingTime:       formatDurationSeconds(executionTime),
		ExecutionTime:        executionTime,
		QualityScore:         qualityScore,
		ContentQuality:       computeContentQuality(qualityScore),
		ExtractionConfidence: float64(qualityScore) / 100.0,
		TextLength:           textLength,
		Extra:                map[string]interface{}{},
	}
}

// CrawlResult represents the result of crawling a single URL (spec §3)
type CrawlResult struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Text      string        `json:"text"`
	Hierarchy HierarchyNode `json:"hierarchy"`
	Metadata  Metadata      `json:"metadata"`
	Status    ResultStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"` // UTC
	Error     string        `json:"error,omitempty"`
}

// NewFailedResult builds a CrawlResult honoring the status=failed invariant:
// text/title empty, hierarchy empty, error set.
func NewFailedResult(url, engineUsed, errMsg string) CrawlResult {
	return CrawlResult{
		URL:       url,
		Title:     "",
		Text:      "",
		Hierarchy: HierarchyNode{},
		Metadata: Metadata{
			CrawlerUsed: engineUsed,
			Extra:       map[string]interface{}{},
		},
		Status:    ResultStatusFailed,
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// CrawlStrategy controls how the orchestrator attempts a URL (spec §3)
type CrawlStrategy struct {
	EnginePriority   []string      `json:"engine_priority"`
	Timeout          time.Duration `json:"timeout"`
	MaxRetries       int           `json:"max_retries"` // >= 1
	WaitTime         time.Duration `json:"wait_time"`
	ActivityTimeout  time.Duration `json:"activity_timeout"`
	MaxTotalTime     time.Duration `json:"max_total_time"` // default 300s
	AntiBotMode      bool          `json:"anti_bot_mode"`
	ExtractImages    bool          `json:"extract_images"`
	ExtractLinks     bool          `json:"extract_links"`
	CustomSelectors  []string      `json:"custom_selectors,omitempty"`
	FallbackStrategy bool          `json:"-"` // set by the builder when the analyzer failed and a heuristic was used
}

// RequestType is the classification produced by the Intent Router (spec §4.6)
type RequestType string

const (
	RequestTypeSingle         RequestType = "single"
	RequestTypeBulk           RequestType = "bulk"
	RequestTypeSelective      RequestType = "selective"
	RequestTypeSearch         RequestType = "search"
	RequestTypeBulkSelective  RequestType = "bulk_selective"
	RequestTypeInvalid        RequestType = "invalid"
)

// UnifiedIntent is the Intent Router's output (spec §3)
type UnifiedIntent struct {
	RequestType    RequestType            `json:"request_type"`
	URLs           []string               `json:"urls"`
	TargetContent  string                 `json:"target_content,omitempty"`
	SearchQuery    string                 `json:"search_query,omitempty"`
	Platform       string                 `json:"platform,omitempty"`
	Confidence     float64                `json:"confidence"` // [0,1]
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// JobState is the lifecycle state of a bulk job (spec §3)
type JobState string

const (
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Job tracks a bulk crawl's progress and results (spec §3)
type Job struct {
	JobID      string        `json:"job_id"`
	Status     JobState      `json:"status"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"` // completed = success + failed
	Success    int           `json:"success"`
	Failed     int           `json:"failed"`
	Progress   int           `json:"progress"` // [0,100]
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time,omitempty"` // set iff status != processing
	Results    []CrawlResult `json:"results"`            // ordered, aligned to input URLs
	ResultFile string        `json:"result_file,omitempty"`
}

// ToJSON serializes the Job to a JSON string
func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatDurationSeconds renders a float seconds value the way the spec's
// processing_time field is written, e.g. "3.2s"
func formatDurationSeconds(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond * 100).String()
}
