package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-ingest/internal/tenant"
)

// TenantRow mirrors the tenants table. The user identifier never appears in
// cleartext: only its keyed hash and its KEK-encrypted envelope are stored.
type TenantRow struct {
	TenantID        string    `bigquery:"tenant_id"`
	UserIDHash      string    `bigquery:"user_id_hash"`
	UserIDEncrypted string    `bigquery:"user_id_encrypted"`
	DEKEncrypted    string    `bigquery:"dek_encrypted"`
	CreatedTS       time.Time `bigquery:"created_ts"`
}

// TenantRepository implements tenant.Repository over BigQuery.
type TenantRepository struct {
	store *Store
}

// NewTenantRepository creates a TenantRepository sharing the store's client.
func NewTenantRepository(store *Store) *TenantRepository {
	return &TenantRepository{store: store}
}

// FindByUserIDHash looks up a tenant by its keyed user-ID hash.
func (r *TenantRepository) FindByUserIDHash(ctx context.Context, userIDHash string) (*tenant.Record, error) {
	return r.findBy(ctx, "user_id_hash", userIDHash)
}

// FindByTenantID looks up a tenant by its opaque identifier.
func (r *TenantRepository) FindByTenantID(ctx context.Context, tenantID string) (*tenant.Record, error) {
	return r.findBy(ctx, "tenant_id", tenantID)
}

func (r *TenantRepository) findBy(ctx context.Context, column, value string) (*tenant.Record, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT tenant_id, user_id_hash, user_id_encrypted, dek_encrypted, created_ts
		FROM %s
		WHERE %s = @value
		LIMIT 1
	`, r.store.table(tenantsTable), column))
	q.Parameters = []bigquery.QueryParameter{{Name: "value", Value: value}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying tenants by %s: %w", column, err)
	}

	var row TenantRow
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bigquery: reading tenant row: %w", err)
	}

	return &tenant.Record{
		TenantID:        row.TenantID,
		UserIDHash:      row.UserIDHash,
		UserIDEncrypted: row.UserIDEncrypted,
		DEKEncrypted:    row.DEKEncrypted,
	}, nil
}

// Insert persists a new tenant record. The MERGE only inserts when no row
// with the same user_id_hash exists; BigQuery executes it atomically, which
// is what enforces the uniqueness constraint the tenant manager relies on.
// Zero affected rows means another writer won the race.
func (r *TenantRepository) Insert(ctx context.Context, rec *tenant.Record) error {
	affected, err := r.store.runDML(ctx, fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @user_id_hash AS user_id_hash) S
		ON T.user_id_hash = S.user_id_hash
		WHEN NOT MATCHED THEN
			INSERT (tenant_id, user_id_hash, user_id_encrypted, dek_encrypted, created_ts)
			VALUES (@tenant_id, @user_id_hash, @user_id_encrypted, @dek_encrypted, @created_ts)
	`, r.store.table(tenantsTable)), []bigquery.QueryParameter{
		{Name: "tenant_id", Value: rec.TenantID},
		{Name: "user_id_hash", Value: rec.UserIDHash},
		{Name: "user_id_encrypted", Value: rec.UserIDEncrypted},
		{Name: "dek_encrypted", Value: rec.DEKEncrypted},
		{Name: "created_ts", Value: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("bigquery: inserting tenant: %w", err)
	}
	if affected == 0 {
		return tenant.ErrDuplicateUserIDHash
	}
	return nil
}
