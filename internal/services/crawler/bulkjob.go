package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// ProgressEvent is published to the Progress Hub as a job's counters
// change (spec §4.5/§6 WebSocket contract).
type ProgressEvent struct {
	Type     string      `json:"type"` // progress_update | crawling_complete | crawling_error
	JobID    string      `json:"job_id"`
	Step     string      `json:"step,omitempty"`
	Progress int         `json:"progress,omitempty"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ProgressPublisher delivers a job-scoped event to its subscribers. The
// Progress Hub (internal/handlers/websocket.go) implements this.
type ProgressPublisher interface {
	Publish(jobID string, event ProgressEvent)
}

// jobSummary is the persisted per-job result file (spec §4.5).
type jobSummary struct {
	JobID       string        `json:"job_id"`
	Total       int           `json:"total"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Results     []CrawlResult `json:"results"`
}

// BulkJobManager fans a URL list out across a bounded worker pool, tracks
// per-job progress, and persists a summary file on completion (spec §4.5).
type BulkJobManager struct {
	orchestrator *Orchestrator
	postproc     *TextPostProcessor
	publisher    ProgressPublisher
	resultDir    string
	logger       arbor.ILogger

	mu   sync.Mutex
	jobs map[string]*Job

	sweeper *cron.Cron
}

// NewBulkJobManager constructs the manager and starts its periodic
// finished-job sweep (purge-eligibility logging only; actual purge still
// requires the DELETE /jobs/{id} call per spec §4.5's cancellation model).
func NewBulkJobManager(orchestrator *Orchestrator, postproc *TextPostProcessor, publisher ProgressPublisher, resultDir, sweepSchedule string, logger arbor.ILogger) *BulkJobManager {
	m := &BulkJobManager{
		orchestrator: orchestrator,
		postproc:     postproc,
		publisher:    publisher,
		resultDir:    resultDir,
		logger:       logger,
		jobs:         make(map[string]*Job),
	}

	if sweepSchedule != "" {
		m.sweeper = cron.New(cron.WithSeconds())
		_, err := m.sweeper.AddFunc(sweepSchedule, m.logSweep)
		if err == nil {
			m.sweeper.Start()
		} else {
			logger.Warn().Err(err).Str("schedule", sweepSchedule).Msg("Invalid bulk-job sweep schedule, sweep disabled")
		}
	}

	return m
}

func (m *BulkJobManager) logSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	finished := 0
	for _, j := range m.jobs {
		if j.Status != JobStateProcessing {
			finished++
		}
	}
	if finished > 0 {
		m.logger.Debug().Int("finished_jobs", finished).Msg("Bulk job sweep: finished jobs eligible for purge")
	}
}

// Start accepts a URL list, allocates a Job, and returns immediately;
// execution runs in a background goroutine (spec §4.5).
func (m *BulkJobManager) Start(ctx context.Context, urls []string, maxConcurrent int, cleanText bool) *Job {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if maxConcurrent > 16 {
		maxConcurrent = 16
	}

	job := &Job{
		JobID:     "job_" + uuid.New().String(),
		Status:    JobStateProcessing,
		Total:     len(urls),
		Results:   make([]CrawlResult, len(urls)),
		StartTime: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.JobID] = job
	m.mu.Unlock()

	go m.run(ctx, job, urls, maxConcurrent, cleanText)

	return job
}

// Get returns the job by id, or false if it doesn't exist.
func (m *BulkJobManager) Get(jobID string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

// Cancel purges a finished job; in-flight jobs are left to complete
// (spec §4.5/§5: DELETE is cleanup, not a stop signal).
func (m *BulkJobManager) Cancel(jobID string) (removed bool, inFlight bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return false, false
	}
	if j.Status == JobStateProcessing {
		return false, true
	}
	delete(m.jobs, jobID)
	return true, false
}

func (m *BulkJobManager) run(ctx context.Context, job *Job, urls []string, maxConcurrent int, cleanText bool) {
	defer func() {
		if r := recover(); r != nil {
			m.finishAsFailed(job, fmt.Errorf("panic in bulk job: %v", r))
		}
	}()

	m.publish(job.JobID, ProgressEvent{Type: "progress_update", JobID: job.JobID, Step: "starting", Progress: 5, Message: "job accepted"})

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var counterMu sync.Mutex
	completed, success, failed := 0, 0, 0

	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, target string) {
			defer wg.Done()
			defer func() { <-sem }()

			result := m.orchestrator.Crawl(ctx, target, nil)
			if cleanText && result.Status == ResultStatusComplete {
				result = m.postproc.Process(result, true)
			}

			counterMu.Lock()
			job.Results[index] = result
			completed++
			if result.Status == ResultStatusComplete {
				success++
			} else {
				failed++
			}
			job.Completed, job.Success, job.Failed = completed, success, failed
			progress := 10 + (completed*80)/job.Total
			job.Progress = progress
			msg := fmt.Sprintf("%d/%d (success: %d)", completed, job.Total, success)
			counterMu.Unlock()

			m.publish(job.JobID, ProgressEvent{Type: "progress_update", JobID: job.JobID, Step: "processing", Progress: progress, Message: msg})
		}(i, u)
	}

	wg.Wait()

	job.Progress = 95
	m.publish(job.JobID, ProgressEvent{Type: "progress_update", JobID: job.JobID, Step: "persisting", Progress: 95, Message: "persisting results"})

	endTime := time.Now().UTC()

	summary := jobSummary{
		JobID:       job.JobID,
		Total:       job.Total,
		Successful:  job.Success,
		Failed:      job.Failed,
		SuccessRate: successRate(job.Success, job.Total),
		StartTime:   job.StartTime,
		EndTime:     endTime,
		Results:     job.Results,
	}

	resultFile := ""
	if path, err := m.persist(summary); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to persist bulk job summary")
	} else {
		resultFile = path
	}

	m.mu.Lock()
	job.ResultFile = resultFile
	job.EndTime = endTime
	job.Progress = 100
	job.Status = JobStateCompleted
	m.mu.Unlock()
	m.publish(job.JobID, ProgressEvent{Type: "crawling_complete", JobID: job.JobID, Progress: 100, Data: summary})
}

func (m *BulkJobManager) finishAsFailed(job *Job, err error) {
	m.mu.Lock()
	job.Status = JobStateFailed
	job.EndTime = time.Now().UTC()
	m.mu.Unlock()
	m.publish(job.JobID, ProgressEvent{Type: "crawling_error", JobID: job.JobID, Error: err.Error()})
}

func (m *BulkJobManager) persist(summary jobSummary) (string, error) {
	if m.resultDir == "" {
		m.resultDir = "results"
	}
	if err := os.MkdirAll(m.resultDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(m.resultDir, summary.JobID+".json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (m *BulkJobManager) publish(jobID string, event ProgressEvent) {
	if m.publisher != nil {
		m.publisher.Publish(jobID, event)
	}
}

func successRate(success, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total) * 100
}
