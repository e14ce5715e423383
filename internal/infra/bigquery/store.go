// Package bigquery implements the storage contracts (tenants, rules,
// documents, ingestion runs, transactions) on top of Google BigQuery.
// The schema is owned here; callers only see the repository interfaces.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Table names within the dataset.
const (
	tenantsTable      = "tenants"
	rulesTable        = "categorization_rules"
	documentsTable    = "documents"
	runsTable         = "ingestion_runs"
	transactionsTable = "transactions"
	categoriesTable   = "categories"
)

// Store holds a shared BigQuery client so repositories do not open a new
// connection per operation.
type Store struct {
	client  *bigquery.Client
	dataset string
}

// NewStore creates a Store for the given project and dataset.
func NewStore(ctx context.Context, projectID, dataset string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery: creating client: %w", err)
	}
	return &Store{client: client, dataset: dataset}, nil
}

// Close closes the underlying client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("%s.%s", s.dataset, name)
}

// runDML executes a parameterized DML statement and returns the number of
// affected rows.
func (s *Store) runDML(ctx context.Context, query string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(query)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery: running statement: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("bigquery: job error: %w", err)
	}

	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows, nil
	}
	return 0, nil
}
