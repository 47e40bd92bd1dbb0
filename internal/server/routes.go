// -----------------------------------------------------------------------
// Last Modified: Thursday, 9th October 2025 8:53:55 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes (spec §6's external interface).
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (Progress Hub)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Crawl dispatch
	mux.HandleFunc("/crawl/single", s.app.CrawlHandler.SingleCrawlHandler)
	mux.HandleFunc("/crawl/bulk", s.app.CrawlHandler.BulkCrawlHandler)
	mux.HandleFunc("/crawl/smart", s.app.CrawlHandler.SmartCrawlHandler)
	mux.HandleFunc("/crawl/unified", s.app.CrawlHandler.UnifiedCrawlHandler)

	// Job status/results/download/delete
	mux.HandleFunc("/jobs/", s.handleJobRoutes)

	// Engine health
	mux.HandleFunc("/engines/status", s.app.CrawlHandler.EnginesStatusHandler)

	// Recent logs snapshot (no WebSocket required)
	mux.HandleFunc("/api/logs/recent", s.app.WSHandler.GetRecentLogsHandler)

	// Graceful shutdown endpoint (dev mode)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler)

	return mux
}

// handleJobRoutes routes /jobs/{id}[/status|/results|/download] to the
// appropriate CrawlHandler method. The {id} is split off first since its
// value varies per-request; the fixed suffix then dispatches by method.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if path == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			matched := RouteByPathSuffix(w, r, "/jobs/"+jobID, []PathSuffixRouter{
				{Suffix: "/status", Handler: func(w http.ResponseWriter, r *http.Request) { s.app.CrawlHandler.JobStatusHandler(w, r, jobID) }},
				{Suffix: "/results", Handler: func(w http.ResponseWriter, r *http.Request) { s.app.CrawlHandler.JobResultsHandler(w, r, jobID) }},
				{Suffix: "/download", Handler: func(w http.ResponseWriter, r *http.Request) { s.app.CrawlHandler.JobDownloadHandler(w, r, jobID) }},
			})
			if !matched && len(parts) == 1 {
				http.Error(w, "not found", http.StatusNotFound)
			}
		},
		http.MethodDelete: func(w http.ResponseWriter, r *http.Request) {
			if len(parts) != 1 {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			s.app.CrawlHandler.DeleteJobHandler(w, r, jobID)
		},
	})
}
