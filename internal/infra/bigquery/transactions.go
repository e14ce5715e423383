package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// TransactionRow mirrors the transactions table. The fingerprint is the
// natural dedup key: at most one row exists per (tenant_id, fingerprint).
type TransactionRow struct {
	TransactionID  string `bigquery:"transaction_id"`
	TenantID       string `bigquery:"tenant_id"`
	DocumentID     string `bigquery:"document_id"`
	IngestionRunID string `bigquery:"ingestion_run_id"`

	Fingerprint string `bigquery:"fingerprint"`

	TransactionDate civil.Date `bigquery:"transaction_date"`
	MerchantName    string     `bigquery:"merchant_name"`
	AmountMinor     int64      `bigquery:"amount_minor"`
	Currency        string     `bigquery:"currency"`

	CategoryID   bigquery.NullString `bigquery:"category_id"`
	Confidence   bigquery.NullInt64  `bigquery:"confidence"`
	RulesApplied int64               `bigquery:"rules_applied"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// TransactionRepository persists deduplicated transactions per tenant.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a TransactionRepository sharing the
// store's client.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// ListFingerprints returns the tenant's existing fingerprint set, the
// consistent snapshot dedup is checked against.
func (r *TransactionRepository) ListFingerprints(ctx context.Context, tenantID string) (map[string]bool, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT fingerprint
		FROM %s
		WHERE tenant_id = @tenant_id
	`, r.store.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "tenant_id", Value: tenantID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying fingerprints: %w", err)
	}

	fingerprints := make(map[string]bool)
	for {
		var row struct {
			Fingerprint string `bigquery:"fingerprint"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: reading fingerprint row: %w", err)
		}
		fingerprints[row.Fingerprint] = true
	}
	return fingerprints, nil
}

// InsertIfAbsent inserts the row unless the tenant already has a transaction
// with the same fingerprint. The MERGE runs atomically, so concurrent
// ingestions of the same logical transaction store it exactly once; which
// writer wins is not specified and does not matter. Returns whether the row
// was actually stored.
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, row *TransactionRow) (bool, error) {
	affected, err := r.store.runDML(ctx, fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @tenant_id AS tenant_id, @fingerprint AS fingerprint) S
		ON T.tenant_id = S.tenant_id AND T.fingerprint = S.fingerprint
		WHEN NOT MATCHED THEN
			INSERT (
				transaction_id, tenant_id, document_id, ingestion_run_id,
				fingerprint, transaction_date, merchant_name, amount_minor,
				currency, category_id, confidence, rules_applied, created_ts
			)
			VALUES (
				@transaction_id, @tenant_id, @document_id, @ingestion_run_id,
				@fingerprint, @transaction_date, @merchant_name, @amount_minor,
				@currency, @category_id, @confidence, @rules_applied, @created_ts
			)
	`, r.store.table(transactionsTable)), []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "tenant_id", Value: row.TenantID},
		{Name: "document_id", Value: row.DocumentID},
		{Name: "ingestion_run_id", Value: row.IngestionRunID},
		{Name: "fingerprint", Value: row.Fingerprint},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "merchant_name", Value: row.MerchantName},
		{Name: "amount_minor", Value: row.AmountMinor},
		{Name: "currency", Value: row.Currency},
		{Name: "category_id", Value: row.CategoryID},
		{Name: "confidence", Value: row.Confidence},
		{Name: "rules_applied", Value: row.RulesApplied},
		{Name: "created_ts", Value: time.Now()},
	})
	if err != nil {
		return false, fmt.Errorf("bigquery: inserting transaction: %w", err)
	}
	return affected > 0, nil
}

// ListByTenant returns the tenant's stored transactions, newest date first.
func (r *TransactionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*TransactionRow, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE tenant_id = @tenant_id
		ORDER BY transaction_date DESC, created_ts DESC
	`, r.store.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "tenant_id", Value: tenantID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying transactions: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: reading transaction row: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
