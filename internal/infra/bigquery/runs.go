package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Ingestion run statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusBlocked   = "BLOCKED"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// IngestionRunRow mirrors the ingestion_runs table. One row per attempt to
// ingest a document; blocked runs are resumed as a fresh run once the user
// supplies the password.
type IngestionRunRow struct {
	RunID      string `bigquery:"run_id"`
	TenantID   string `bigquery:"tenant_id"`
	DocumentID string `bigquery:"document_id"`
	Status     string `bigquery:"status"`

	TransactionsExtracted int64 `bigquery:"transactions_extracted"`
	TransactionsStored    int64 `bigquery:"transactions_stored"`
	TransactionsSkipped   int64 `bigquery:"transactions_skipped"`

	ErrorMessage bigquery.NullString `bigquery:"error_message"`

	StartedTS  time.Time             `bigquery:"started_ts"`
	FinishedTS bigquery.NullDateTime `bigquery:"finished_ts"`
}

// RunRepository tracks the lifecycle of ingestion runs.
type RunRepository struct {
	store *Store
}

// NewRunRepository creates a RunRepository sharing the store's client.
func NewRunRepository(store *Store) *RunRepository {
	return &RunRepository{store: store}
}

// ErrRunNotFound is returned when a run lookup misses.
var ErrRunNotFound = errors.New("bigquery: ingestion run not found")

// StartRun records a new run in RUNNING state. The row goes in via DML, not
// the streaming inserter: finish() UPDATEs it moments later, and UPDATE
// cannot touch rows still sitting in the streaming buffer.
func (r *RunRepository) StartRun(ctx context.Context, runID, tenantID, documentID string) error {
	_, err := r.store.runDML(ctx, fmt.Sprintf(`
		INSERT %s (
			run_id,
			tenant_id,
			document_id,
			status,
			transactions_extracted,
			transactions_stored,
			transactions_skipped,
			started_ts
		)
		VALUES (@run_id, @tenant_id, @document_id, @status, 0, 0, 0, @started_ts)
	`, r.store.table(runsTable)), []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "tenant_id", Value: tenantID},
		{Name: "document_id", Value: documentID},
		{Name: "status", Value: RunStatusRunning},
		{Name: "started_ts", Value: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("bigquery: inserting ingestion run: %w", err)
	}
	return nil
}

// RunCounts carries the per-run outcome totals.
type RunCounts struct {
	Extracted int64
	Stored    int64
	Skipped   int64
}

// MarkSucceeded finishes a run with its outcome counts.
func (r *RunRepository) MarkSucceeded(ctx context.Context, runID string, counts RunCounts) error {
	return r.finish(ctx, runID, RunStatusSucceeded, counts, "")
}

// MarkFailed finishes a run with the failure reason.
func (r *RunRepository) MarkFailed(ctx context.Context, runID, reason string) error {
	return r.finish(ctx, runID, RunStatusFailed, RunCounts{}, reason)
}

// MarkBlocked parks a run that cannot proceed without a document password.
func (r *RunRepository) MarkBlocked(ctx context.Context, runID, reason string) error {
	return r.finish(ctx, runID, RunStatusBlocked, RunCounts{}, reason)
}

func (r *RunRepository) finish(ctx context.Context, runID, status string, counts RunCounts, reason string) error {
	errMsg := bigquery.NullString{}
	if reason != "" {
		errMsg = bigquery.NullString{StringVal: reason, Valid: true}
	}

	_, err := r.store.runDML(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
			transactions_extracted = @extracted,
			transactions_stored = @stored,
			transactions_skipped = @skipped,
			error_message = @error_message,
			finished_ts = CURRENT_DATETIME()
		WHERE run_id = @run_id
	`, r.store.table(runsTable)), []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "extracted", Value: counts.Extracted},
		{Name: "stored", Value: counts.Stored},
		{Name: "skipped", Value: counts.Skipped},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	})
	if err != nil {
		return fmt.Errorf("bigquery: finishing ingestion run: %w", err)
	}
	return nil
}

// FindRun retrieves a run by ID.
func (r *RunRepository) FindRun(ctx context.Context, runID string) (*IngestionRunRow, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE run_id = @run_id
		LIMIT 1
	`, r.store.table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying ingestion runs: %w", err)
	}

	var row IngestionRunRow
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bigquery: reading ingestion run row: %w", err)
	}
	return &row, nil
}
