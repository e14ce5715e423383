package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.IngestDocumentJob {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			job, _ := store.GetJob(context.Background(), jobID)
			t.Fatalf("job %s never reached status %q (last: %+v)", jobID, want, job)
			return nil
		case <-time.After(10 * time.Millisecond):
			job, err := store.GetJob(context.Background(), jobID)
			if err == nil && job.Status == want {
				return job
			}
		}
	}
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var handled atomic.Int32
	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestDocumentJob{UserID: "user-1", DocumentID: "doc-1", GCSURI: "gs://b/o.pdf"}
	if err := q.PublishIngestDocument(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestDocument() error = %v", err)
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if handled.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", handled.Load())
	}
}

func TestQueueRetriesTransientFailure(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestDocumentJob{UserID: "user-1", DocumentID: "doc-1", GCSURI: "gs://b/o.pdf"}
	if err := q.PublishIngestDocument(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestDocument() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
	if attempts.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", attempts.Load())
	}
}

func TestQueueDoesNotRetryPermanentFailure(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return jobs.Permanent(errors.New("password required"))
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestDocumentJob{UserID: "user-1", DocumentID: "doc-1", GCSURI: "gs://b/o.pdf"}
	if err := q.PublishIngestDocument(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestDocument() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0 for permanent failure", got.RetryCount)
	}
	if attempts.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", attempts.Load())
	}
}

func TestQueueFailsAbandonedRetryAfterStop(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)

	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		return errors.New("transient")
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestDocumentJob{UserID: "user-1", DocumentID: "doc-1", GCSURI: "gs://b/o.pdf"}
	if err := q.PublishIngestDocument(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestDocument() error = %v", err)
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusRetrying)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The backoff timer fires against a closed queue; the job must land in
	// a terminal state instead of staying in retrying forever.
	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.Error == "" {
		t.Error("abandoned retry recorded no error detail")
	}
}

func TestQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := q.PublishIngestDocument(context.Background(), &jobs.IngestDocumentJob{})
	if err == nil {
		t.Error("expected publish on closed queue to fail")
	}
}
