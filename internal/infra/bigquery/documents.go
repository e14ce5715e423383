package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Document statuses.
const (
	DocumentStatusPending   = "PENDING"
	DocumentStatusBlocked   = "BLOCKED" // waiting for a password from the user
	DocumentStatusProcessed = "PROCESSED"
	DocumentStatusFailed    = "FAILED"
)

// DocumentRow mirrors the documents table.
type DocumentRow struct {
	DocumentID       string    `bigquery:"document_id"`
	TenantID         string    `bigquery:"tenant_id"`
	GCSURI           string    `bigquery:"gcs_uri"`
	OriginalFilename string    `bigquery:"original_filename"`
	ChecksumSHA256   string    `bigquery:"checksum_sha256"`
	Status           string    `bigquery:"status"`
	UploadTS         time.Time `bigquery:"upload_ts"`
}

// DocumentRepository records uploaded documents and their gating status.
type DocumentRepository struct {
	store *Store
}

// NewDocumentRepository creates a DocumentRepository sharing the store's
// client.
func NewDocumentRepository(store *Store) *DocumentRepository {
	return &DocumentRepository{store: store}
}

// ErrDocumentNotFound is returned when a document lookup misses.
var ErrDocumentNotFound = errors.New("bigquery: document not found")

// InsertDocument records a newly uploaded document. Inserted via DML rather
// than the streaming inserter because UpdateDocumentStatus UPDATEs the row
// right after, and UPDATE cannot touch rows still in the streaming buffer.
func (r *DocumentRepository) InsertDocument(ctx context.Context, row *DocumentRow) error {
	if row.UploadTS.IsZero() {
		row.UploadTS = time.Now()
	}
	_, err := r.store.runDML(ctx, fmt.Sprintf(`
		INSERT %s (
			document_id,
			tenant_id,
			gcs_uri,
			original_filename,
			checksum_sha256,
			status,
			upload_ts
		)
		VALUES (@document_id, @tenant_id, @gcs_uri, @original_filename, @checksum_sha256, @status, @upload_ts)
	`, r.store.table(documentsTable)), []bigquery.QueryParameter{
		{Name: "document_id", Value: row.DocumentID},
		{Name: "tenant_id", Value: row.TenantID},
		{Name: "gcs_uri", Value: row.GCSURI},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "checksum_sha256", Value: row.ChecksumSHA256},
		{Name: "status", Value: row.Status},
		{Name: "upload_ts", Value: row.UploadTS},
	})
	if err != nil {
		return fmt.Errorf("bigquery: inserting document: %w", err)
	}
	return nil
}

// UpdateDocumentStatus transitions a document's status.
func (r *DocumentRepository) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	_, err := r.store.runDML(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = @status
		WHERE document_id = @document_id
	`, r.store.table(documentsTable)), []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "document_id", Value: documentID},
	})
	if err != nil {
		return fmt.Errorf("bigquery: updating document status: %w", err)
	}
	return nil
}

// FindDocument retrieves a document by ID.
func (r *DocumentRepository) FindDocument(ctx context.Context, documentID string) (*DocumentRow, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT document_id, tenant_id, gcs_uri, original_filename, checksum_sha256, status, upload_ts
		FROM %s
		WHERE document_id = @document_id
		LIMIT 1
	`, r.store.table(documentsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "document_id", Value: documentID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying documents: %w", err)
	}

	var row DocumentRow
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bigquery: reading document row: %w", err)
	}
	return &row, nil
}
