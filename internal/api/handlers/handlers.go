// Package handlers implements the HTTP surface: statement upload, password
// submission for blocked documents, and tenant-scoped reads. Every endpoint
// is scoped to the user identity established by the middleware; handlers
// never accept a tenant ID from the client.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/gcs"
	infra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/tenant"
)

// maxUploadBytes caps statement uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// DocumentStore is the slice of document persistence the handlers need.
type DocumentStore interface {
	InsertDocument(ctx context.Context, row *infra.DocumentRow) error
	FindDocument(ctx context.Context, documentID string) (*infra.DocumentRow, error)
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
}

// TransactionReader lists stored transactions for a tenant.
type TransactionReader interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*infra.TransactionRow, error)
}

// TenantResolver maps user identities to tenants.
type TenantResolver interface {
	ResolveOrCreate(ctx context.Context, userID string) (tenant.Context, error)
	ResolveByUserID(ctx context.Context, userID string) (tenant.Context, error)
}

// Uploader writes statement bytes to object storage.
type Uploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error)
}

// DocumentsHandler handles document upload and lifecycle endpoints.
type DocumentsHandler struct {
	docs      DocumentStore
	tenants   TenantResolver
	uploader  Uploader
	publisher jobs.Publisher
	bucket    string
	log       zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(docs DocumentStore, tenants TenantResolver, uploader Uploader, publisher jobs.Publisher, bucket string, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		docs:      docs,
		tenants:   tenants,
		uploader:  uploader,
		publisher: publisher,
		bucket:    bucket,
		log:       log,
	}
}

// Upload handles POST /api/documents.
// The request body is the statement itself; the filename comes from the
// "filename" query parameter and an optional document password from the
// X-Document-Password header. The password is forwarded to the worker, never
// stored.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	tc, err := h.tenants.ResolveOrCreate(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve tenant")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve tenant")
		return
	}

	filename := cleanFilename(r.URL.Query().Get("filename"))
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	documentID := uuid.NewString()
	objectName := fmt.Sprintf("uploads/%s/%s/%s-%s", tc.TenantID, time.Now().Format("2006/01/02"), documentID, filename)

	// Hash while streaming so the checksum costs no second pass.
	hasher := sha256.New()
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	tee := io.TeeReader(body, hasher)

	gcsURI, err := h.uploader.Upload(ctx, h.bucket, objectName, contentType, tee)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upload statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	doc := &infra.DocumentRow{
		DocumentID:       documentID,
		TenantID:         tc.TenantID,
		GCSURI:           gcsURI,
		OriginalFilename: filename,
		ChecksumSHA256:   hex.EncodeToString(hasher.Sum(nil)),
		Status:           infra.DocumentStatusPending,
		UploadTS:         time.Now(),
	}
	if err := h.docs.InsertDocument(ctx, doc); err != nil {
		h.log.Error().Err(err).Msg("Failed to insert document metadata")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save document metadata")
		return
	}

	job := &jobs.IngestDocumentJob{
		UserID:     userID,
		DocumentID: documentID,
		GCSURI:     gcsURI,
		Password:   r.Header.Get("X-Document-Password"),
	}
	if err := h.publisher.PublishIngestDocument(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("document_id", documentID).
		Str("gcs_uri", gcsURI).
		Msg("Statement uploaded and ingestion enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"document_id": documentID,
		"job_id":      job.JobID,
		"gcs_uri":     gcsURI,
		"status":      string(job.Status),
	})
}

// SubmitPassword handles POST /api/documents/{id}/password.
// It re-enqueues ingestion for a BLOCKED document with the supplied password.
func (h *DocumentsHandler) SubmitPassword(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "password is required")
		return
	}

	doc, err := h.findOwnedDocument(ctx, userID, documentID)
	if err != nil {
		h.writeDocumentError(w, documentID, err)
		return
	}
	if doc.Status != infra.DocumentStatusBlocked {
		middleware.WriteError(w, http.StatusConflict, "Document is not waiting for a password")
		return
	}

	if err := h.docs.UpdateDocumentStatus(ctx, documentID, infra.DocumentStatusPending); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset document status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update document")
		return
	}

	job := &jobs.IngestDocumentJob{
		UserID:     userID,
		DocumentID: documentID,
		GCSURI:     doc.GCSURI,
		Password:   req.Password,
	}
	if err := h.publisher.PublishIngestDocument(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("document_id", documentID).
		Msg("Blocked document re-enqueued with password")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"document_id": documentID,
		"job_id":      job.JobID,
		"status":      string(job.Status),
	})
}

// GetDocument handles GET /api/documents/{id}.
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	doc, err := h.findOwnedDocument(ctx, userID, documentID)
	if err != nil {
		h.writeDocumentError(w, documentID, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id":       doc.DocumentID,
		"original_filename": doc.OriginalFilename,
		"status":            doc.Status,
		"gcs_filename":      gcs.Filename(doc.GCSURI),
		"uploaded_at":       doc.UploadTS,
	})
}

var errDocumentForbidden = errors.New("document belongs to another tenant")

// findOwnedDocument loads the document and verifies it belongs to the
// caller's tenant.
func (h *DocumentsHandler) findOwnedDocument(ctx context.Context, userID, documentID string) (*infra.DocumentRow, error) {
	tc, err := h.tenants.ResolveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, infra.ErrDocumentNotFound
		}
		return nil, err
	}

	doc, err := h.docs.FindDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tc.TenantID {
		return nil, errDocumentForbidden
	}
	return doc, nil
}

func (h *DocumentsHandler) writeDocumentError(w http.ResponseWriter, documentID string, err error) {
	// Cross-tenant access reads as not-found so document IDs cannot be probed.
	if errors.Is(err, infra.ErrDocumentNotFound) || errors.Is(err, errDocumentForbidden) {
		middleware.WriteError(w, http.StatusNotFound, "Document not found")
		return
	}
	h.log.Error().Err(err).Str("document_id", documentID).Msg("Failed to load document")
	middleware.WriteError(w, http.StatusInternalServerError, "Failed to load document")
}

func cleanFilename(filename string) string {
	if filename == "" {
		return "statement.pdf"
	}
	if idx := strings.Index(filename, "?"); idx > 0 {
		filename = filename[:idx]
	}
	return filepath.Base(filename)
}

// TransactionsHandler handles transaction read endpoints.
type TransactionsHandler struct {
	txs     TransactionReader
	tenants TenantResolver
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(txs TransactionReader, tenants TenantResolver, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		txs:     txs,
		tenants: tenants,
		log:     log,
	}
}

// ListTransactions handles GET /api/transactions.
// A user who has never uploaded anything gets an empty list, not an error.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	tc, err := h.tenants.ResolveByUserID(ctx, userID)
	if errors.Is(err, tenant.ErrNotFound) {
		middleware.WriteJSON(w, http.StatusOK, []*infra.TransactionRow{})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve tenant")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve tenant")
		return
	}

	transactions, err := h.txs.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []*infra.TransactionRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// JobsHandler handles job status endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	// Another user's job reads as not-found, same as documents.
	if job.UserID != userID {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	// The password travels only queue-side.
	job.Password = ""
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs. Results are always scoped to the caller's
// own jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID:     middleware.UserID(ctx),
		DocumentID: query.Get("document_id"),
		Status:     jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	for _, j := range jobsList {
		j.Password = ""
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
