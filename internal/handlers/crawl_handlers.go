// -----------------------------------------------------------------------
// Last Modified: Thursday, 9th October 2025 8:53:55 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/services/crawler"
)

// CrawlHandler serves the crawl orchestration HTTP surface (spec §6):
// single/bulk/smart/unified crawl dispatch, job status/results/download,
// and engine health.
type CrawlHandler struct {
	registry     *crawler.Registry
	analyzer     *crawler.SiteAnalyzer
	builder      *crawler.StrategyBuilder
	orchestrator *crawler.Orchestrator
	bulkJobs     *crawler.BulkJobManager
	postproc     *crawler.TextPostProcessor
	extractor    *crawler.ContentExtractor
	intentRouter *crawler.IntentRouter
	logger       arbor.ILogger
}

// NewCrawlHandler wires the crawl HTTP surface to the orchestration engine.
func NewCrawlHandler(
	registry *crawler.Registry,
	analyzer *crawler.SiteAnalyzer,
	builder *crawler.StrategyBuilder,
	orchestrator *crawler.Orchestrator,
	bulkJobs *crawler.BulkJobManager,
	postproc *crawler.TextPostProcessor,
	extractor *crawler.ContentExtractor,
	intentRouter *crawler.IntentRouter,
	logger arbor.ILogger,
) *CrawlHandler {
	return &CrawlHandler{
		registry:     registry,
		analyzer:     analyzer,
		builder:      builder,
		orchestrator: orchestrator,
		bulkJobs:     bulkJobs,
		postproc:     postproc,
		extractor:    extractor,
		intentRouter: intentRouter,
		logger:       logger,
	}
}

type singleCrawlRequest struct {
	URL         string `json:"url"`
	Engine      string `json:"engine,omitempty"`
	Timeout     int    `json:"timeout,omitempty"` // seconds
	AntiBotMode bool   `json:"anti_bot_mode,omitempty"`
	CleanText   bool   `json:"clean_text,omitempty"`
	JobID       string `json:"job_id,omitempty"`
}

// SingleCrawlHandler handles POST /crawl/single.
func (h *CrawlHandler) SingleCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req singleCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	result := h.crawlOne(r.Context(), req.URL, req.Engine, req.Timeout, req.AntiBotMode)
	if req.CleanText {
		result = h.postproc.Process(result, true)
	}

	if result.Status != crawler.ResultStatusComplete {
		h.writeFailedResult(w, req.URL, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// crawlOne resolves a strategy and runs the orchestrator, building an
// override strategy only when the caller asked for engine/timeout/anti-bot
// behavior different from the analyzer-driven default (spec §4.4).
func (h *CrawlHandler) crawlOne(ctx context.Context, url, engine string, timeoutSeconds int, antiBotMode bool) crawler.CrawlResult {
	if engine == "" && timeoutSeconds == 0 && !antiBotMode {
		return h.orchestrator.Crawl(ctx, url, nil)
	}

	analysis := h.analyzer.Analyze(ctx, url)
	strategy := h.builder.Build(analysis)
	if engine != "" {
		strategy.EnginePriority = []string{engine}
	}
	if timeoutSeconds > 0 {
		strategy.Timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if antiBotMode {
		strategy.AntiBotMode = true
	}
	return h.orchestrator.Crawl(ctx, url, &strategy)
}

type bulkCrawlRequest struct {
	URLs          []string `json:"urls"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Timeout       int      `json:"timeout,omitempty"`
	CleanText     bool     `json:"clean_text,omitempty"`
}

// BulkCrawlHandler handles POST /crawl/bulk. Returns immediately with the
// new job's id; the crawl runs in the background (spec §4.5).
func (h *CrawlHandler) BulkCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bulkCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.URLs) == 0 {
		http.Error(w, "urls is required", http.StatusBadRequest)
		return
	}

	job := h.bulkJobs.Start(context.Background(), req.URLs, req.MaxConcurrent, req.CleanText)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":     job.JobID,
		"total_urls": job.Total,
		"status":     "started",
	})
}

type smartCrawlRequest struct {
	Text      string `json:"text"`
	Timeout   int    `json:"timeout,omitempty"`
	CleanText bool   `json:"clean_text,omitempty"`
}

// SmartCrawlHandler handles POST /crawl/smart: parse free text, fetch the
// recovered URL, and run the Selective Extractor against whatever target
// content the text names (spec §4.6/§4.9).
func (h *CrawlHandler) SmartCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req smartCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent := h.intentRouter.AnalyzeUnifiedIntent(req.Text)
	if len(intent.URLs) == 0 {
		http.Error(w, "no URL recovered from text", http.StatusBadRequest)
		return
	}

	target := intent.URLs[0]
	result := h.crawlOne(r.Context(), target, "", req.Timeout, false)
	if req.CleanText {
		result = h.postproc.Process(result, true)
	}
	if result.Status != crawler.ResultStatusComplete {
		h.writeFailedResult(w, target, result)
		return
	}

	extraction := h.extractor.Extract(result.Text, intent.TargetContent, target)
	writeJSON(w, http.StatusOK, extraction)
}

type unifiedCrawlRequest struct {
	Text      string `json:"text"`
	Engine    string `json:"engine,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
	CleanText bool   `json:"clean_text,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

// UnifiedCrawlHandler handles POST /crawl/unified: dispatch free text
// through the Intent Router to whichever crawl mode it classifies to
// (spec §4.6).
func (h *CrawlHandler) UnifiedCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req unifiedCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent := h.intentRouter.AnalyzeUnifiedIntent(req.Text)

	switch intent.RequestType {
	case crawler.RequestTypeSingle:
		result := h.crawlOne(r.Context(), intent.URLs[0], req.Engine, req.Timeout, false)
		if req.CleanText {
			result = h.postproc.Process(result, true)
		}
		if result.Status != crawler.ResultStatusComplete {
			h.writeFailedResult(w, intent.URLs[0], result)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case crawler.RequestTypeSelective:
		result := h.crawlOne(r.Context(), intent.URLs[0], req.Engine, req.Timeout, false)
		if req.CleanText {
			result = h.postproc.Process(result, true)
		}
		if result.Status != crawler.ResultStatusComplete {
			h.writeFailedResult(w, intent.URLs[0], result)
			return
		}
		extraction := h.extractor.Extract(result.Text, intent.TargetContent, intent.URLs[0])
		writeJSON(w, http.StatusOK, extraction)

	case crawler.RequestTypeBulk:
		job := h.bulkJobs.Start(context.Background(), intent.URLs, 0, req.CleanText)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":     job.JobID,
			"total_urls": job.Total,
			"status":     "started",
		})

	case crawler.RequestTypeSearch, crawler.RequestTypeBulkSelective:
		writeJSON(w, http.StatusNotImplemented, map[string]interface{}{
			"request_type": intent.RequestType,
			"message":      "recognized but not yet implemented",
			"intent":       intent,
		})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"request_type": intent.RequestType,
			"message":      "could not determine a URL or search intent from the text",
			"intent":       intent,
		})
	}
}

// JobStatusHandler handles GET /jobs/{id}/status.
func (h *CrawlHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.bulkJobs.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    job.JobID,
		"status":    job.Status,
		"total":     job.Total,
		"completed": job.Completed,
		"success":   job.Success,
		"failed":    job.Failed,
		"progress":  job.Progress,
	})
}

// JobResultsHandler handles GET /jobs/{id}/results. Only serves completed jobs.
func (h *CrawlHandler) JobResultsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.bulkJobs.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if job.Status != crawler.JobStateCompleted {
		http.Error(w, "job not completed", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": map[string]interface{}{
			"job_id":    job.JobID,
			"status":    job.Status,
			"total":     job.Total,
			"success":   job.Success,
			"failed":    job.Failed,
			"start":     job.StartTime,
			"end":       job.EndTime,
		},
		"results": job.Results,
	})
}

// JobDownloadHandler handles GET /jobs/{id}/download: serves the persisted summary file.
func (h *CrawlHandler) JobDownloadHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.bulkJobs.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if job.ResultFile == "" {
		http.Error(w, "no result file persisted for this job yet", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, job.ResultFile)
}

// DeleteJobHandler handles DELETE /jobs/{id}: purges a finished job.
// In-flight jobs are left running (spec §4.5/§5: DELETE is cleanup, not a stop signal).
func (h *CrawlHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	removed, inFlight := h.bulkJobs.Cancel(jobID)
	if inFlight {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"message": "job is still in flight and cannot be purged; it will remain available once it finishes",
		})
		return
	}
	if !removed {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "job purged"})
}

// EnginesStatusHandler handles GET /engines/status.
func (h *CrawlHandler) EnginesStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"engines": h.registry.Status()})
}

// writeFailedResult converts a failed CrawlResult into the 422 error
// contract of spec §6/§7: a user-friendly message, never the raw error.
func (h *CrawlHandler) writeFailedResult(w http.ResponseWriter, url string, result crawler.CrawlResult) {
	debugFile, err := writeDebugFile(url, result.Error)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", url).Msg("Failed to persist crawl error debug file")
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"message":           formatUserMessage(result.Error),
		"url":               url,
		"error":             formatUserMessage(result.Error),
		"detailed_error":    result.Error,
		"attempted_engines": result.Metadata.AttemptedEngines,
		"debug_file":        debugFile,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
