package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

type recordingPublisher struct {
	events []ProgressEvent
}

func (r *recordingPublisher) Publish(jobID string, event ProgressEvent) {
	r.events = append(r.events, event)
}

func newTestBulkJobManager(t *testing.T, publisher ProgressPublisher) *BulkJobManager {
	t.Helper()
	logger := arbor.NewLogger()
	registry := NewRegistry(logger)
	analyzer := NewSiteAnalyzer(logger)
	builder := NewStrategyBuilder(registry)
	orchestrator := NewOrchestrator(registry, analyzer, builder, logger)
	postproc := NewTextPostProcessor()
	return NewBulkJobManager(orchestrator, postproc, publisher, t.TempDir(), "", logger)
}

// Invalid-scheme URLs fail orchestrator validation before any network
// fetch is attempted, so the job completes near-instantly and
// deterministically without depending on outbound connectivity.
func waitForCompletion(t *testing.T, m *BulkJobManager, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.Get(jobID)
		if !ok {
			t.Fatalf("job %q disappeared while waiting for completion", jobID)
		}
		if job.Status != JobStateProcessing {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %q did not complete within the test deadline", jobID)
	return nil
}

func TestBulkJobManagerCompletesAndTracksCounters(t *testing.T) {
	m := newTestBulkJobManager(t, nil)
	urls := []string{"javascript:alert(1)", "mailto:a@b.com", "#"}

	job := m.Start(context.Background(), urls, 2, false)
	if job.Total != 3 || job.Status != JobStateProcessing {
		t.Fatalf("unexpected freshly-started job: %+v", job)
	}

	finished := waitForCompletion(t, m, job.JobID)
	if finished.Status != JobStateCompleted {
		t.Fatalf("expected job to complete, got status=%q", finished.Status)
	}
	if finished.Completed != 3 || finished.Failed != 3 || finished.Success != 0 {
		t.Errorf("expected all 3 urls to fail validation, got completed=%d success=%d failed=%d",
			finished.Completed, finished.Success, finished.Failed)
	}
	if finished.Progress != 100 {
		t.Errorf("expected progress=100 on completion, got %d", finished.Progress)
	}
	if finished.ResultFile == "" {
		t.Error("expected a persisted result file path on completion")
	}
	if len(finished.Results) != 3 {
		t.Errorf("expected 3 aligned results, got %d", len(finished.Results))
	}
}

func TestBulkJobManagerPublishesProgressEvents(t *testing.T) {
	pub := &recordingPublisher{}
	m := newTestBulkJobManager(t, pub)

	job := m.Start(context.Background(), []string{"javascript:x()"}, 1, false)
	waitForCompletion(t, m, job.JobID)

	foundComplete := false
	for _, e := range pub.events {
		if e.Type == "crawling_complete" {
			foundComplete = true
		}
	}
	if !foundComplete {
		t.Error("expected a crawling_complete event to be published")
	}
}

func TestBulkJobManagerGetUnknownJob(t *testing.T) {
	m := newTestBulkJobManager(t, nil)
	if _, ok := m.Get("does-not-exist"); ok {
		t.Error("expected an unknown job id to report ok=false")
	}
}

func TestBulkJobManagerCancelUnknownJob(t *testing.T) {
	m := newTestBulkJobManager(t, nil)
	removed, inFlight := m.Cancel("does-not-exist")
	if removed || inFlight {
		t.Errorf("expected Cancel on an unknown job to report (false, false), got (%v, %v)", removed, inFlight)
	}
}

func TestBulkJobManagerCancelRemovesFinishedJob(t *testing.T) {
	m := newTestBulkJobManager(t, nil)
	job := m.Start(context.Background(), []string{"javascript:x()"}, 1, false)
	waitForCompletion(t, m, job.JobID)

	removed, inFlight := m.Cancel(job.JobID)
	if !removed || inFlight {
		t.Errorf("expected a finished job to be removed (true, false), got (%v, %v)", removed, inFlight)
	}
	if _, ok := m.Get(job.JobID); ok {
		t.Error("expected the job to be gone after Cancel")
	}
}

func TestSuccessRateHandlesZeroTotal(t *testing.T) {
	if successRate(0, 0) != 0 {
		t.Error("expected successRate(0, 0) = 0")
	}
	if successRate(1, 2) != 50 {
		t.Errorf("expected successRate(1, 2) = 50, got %v", successRate(1, 2))
	}
}
