package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/statement-ingest/internal/api/handlers"
	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	infra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/tenant"
)

type mockDocStore struct {
	inserted []*infra.DocumentRow
	docs     map[string]*infra.DocumentRow
	statuses map[string]string
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{
		docs:     make(map[string]*infra.DocumentRow),
		statuses: make(map[string]string),
	}
}

func (m *mockDocStore) InsertDocument(ctx context.Context, row *infra.DocumentRow) error {
	m.inserted = append(m.inserted, row)
	m.docs[row.DocumentID] = row
	return nil
}

func (m *mockDocStore) FindDocument(ctx context.Context, documentID string) (*infra.DocumentRow, error) {
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, infra.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *mockDocStore) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	m.statuses[documentID] = status
	return nil
}

type mockTenants struct {
	known map[string]string
}

func (m *mockTenants) ResolveOrCreate(ctx context.Context, userID string) (tenant.Context, error) {
	if id, ok := m.known[userID]; ok {
		return tenant.Context{TenantID: id}, nil
	}
	return tenant.Context{TenantID: "tenant-" + userID}, nil
}

func (m *mockTenants) ResolveByUserID(ctx context.Context, userID string) (tenant.Context, error) {
	if id, ok := m.known[userID]; ok {
		return tenant.Context{TenantID: id}, nil
	}
	return tenant.Context{}, tenant.ErrNotFound
}

type mockUploader struct {
	object string
	body   []byte
	err    error
}

func (m *mockUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.object = object
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.body = data
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}

type mockPublisher struct {
	published []*jobs.IngestDocumentJob
	err       error
}

func (m *mockPublisher) PublishIngestDocument(ctx context.Context, job *jobs.IngestDocumentJob) error {
	if m.err != nil {
		return m.err
	}
	if job.JobID == "" {
		job.JobID = fmt.Sprintf("job-%d", len(m.published)+1)
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func withUser(r *http.Request, userID string) *http.Request {
	r.Header.Set("X-User-ID", userID)
	return r
}

// serve routes the request through UserIdentity the way the server does.
func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.UserIdentity(h).ServeHTTP(rec, r)
	return rec
}

func TestUploadEnqueuesIngestion(t *testing.T) {
	docs := newMockDocStore()
	uploader := &mockUploader{}
	publisher := &mockPublisher{}
	h := handlers.NewDocumentsHandler(docs, &mockTenants{}, uploader, publisher, "statements", logger.NewWithWriter(io.Discard))

	body := bytes.NewBufferString("%PDF-1.7 fake statement")
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/documents?filename=march.pdf", body), "user-1")
	req.Header.Set("X-Document-Password", "hunter2")

	rec := serve(h.Upload, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if len(docs.inserted) != 1 {
		t.Fatalf("inserted %d documents, want 1", len(docs.inserted))
	}
	doc := docs.inserted[0]
	if doc.Status != infra.DocumentStatusPending {
		t.Errorf("document status = %q, want %q", doc.Status, infra.DocumentStatusPending)
	}
	if doc.OriginalFilename != "march.pdf" {
		t.Errorf("filename = %q, want march.pdf", doc.OriginalFilename)
	}
	if len(doc.ChecksumSHA256) != 64 {
		t.Errorf("checksum length = %d, want 64", len(doc.ChecksumSHA256))
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(publisher.published))
	}
	job := publisher.published[0]
	if job.Password != "hunter2" {
		t.Errorf("job password = %q, want the submitted password", job.Password)
	}
	if job.UserID != "user-1" {
		t.Errorf("job user = %q, want user-1", job.UserID)
	}
	if !strings.Contains(uploader.object, doc.DocumentID) {
		t.Errorf("object name %q does not embed document ID", uploader.object)
	}
}

func TestUploadRequiresUserIdentity(t *testing.T) {
	h := handlers.NewDocumentsHandler(newMockDocStore(), &mockTenants{}, &mockUploader{}, &mockPublisher{}, "statements", logger.NewWithWriter(io.Discard))

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader("data"))
	rec := serve(h.Upload, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSubmitPasswordReenqueuesBlockedDocument(t *testing.T) {
	docs := newMockDocStore()
	docs.docs["doc-1"] = &infra.DocumentRow{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		GCSURI:     "gs://statements/doc-1.pdf",
		Status:     infra.DocumentStatusBlocked,
	}
	publisher := &mockPublisher{}
	tenants := &mockTenants{known: map[string]string{"user-1": "tenant-1"}}
	h := handlers.NewDocumentsHandler(docs, tenants, &mockUploader{}, publisher, "statements", logger.NewWithWriter(io.Discard))

	body := strings.NewReader(`{"password":"secret"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/password", body), "user-1")

	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		h.SubmitPassword(w, r, "doc-1")
	}, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(publisher.published))
	}
	if publisher.published[0].Password != "secret" {
		t.Errorf("job password = %q, want secret", publisher.published[0].Password)
	}
	if docs.statuses["doc-1"] != infra.DocumentStatusPending {
		t.Errorf("document status = %q, want reset to %q", docs.statuses["doc-1"], infra.DocumentStatusPending)
	}
}

func TestSubmitPasswordRejectsNonBlockedDocument(t *testing.T) {
	docs := newMockDocStore()
	docs.docs["doc-1"] = &infra.DocumentRow{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Status:     infra.DocumentStatusProcessed,
	}
	tenants := &mockTenants{known: map[string]string{"user-1": "tenant-1"}}
	h := handlers.NewDocumentsHandler(docs, tenants, &mockUploader{}, &mockPublisher{}, "statements", logger.NewWithWriter(io.Discard))

	body := strings.NewReader(`{"password":"secret"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/password", body), "user-1")

	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		h.SubmitPassword(w, r, "doc-1")
	}, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestGetDocumentHidesOtherTenants(t *testing.T) {
	docs := newMockDocStore()
	docs.docs["doc-1"] = &infra.DocumentRow{
		DocumentID: "doc-1",
		TenantID:   "tenant-other",
		GCSURI:     "gs://statements/doc-1.pdf",
		Status:     infra.DocumentStatusProcessed,
	}
	tenants := &mockTenants{known: map[string]string{"user-1": "tenant-1"}}
	h := handlers.NewDocumentsHandler(docs, tenants, &mockUploader{}, &mockPublisher{}, "statements", logger.NewWithWriter(io.Discard))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/documents/doc-1", nil), "user-1")
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		h.GetDocument(w, r, "doc-1")
	}, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d for another tenant's document", rec.Code, http.StatusNotFound)
	}
}

type mockTxReader struct {
	rows []*infra.TransactionRow
}

func (m *mockTxReader) ListByTenant(ctx context.Context, tenantID string) ([]*infra.TransactionRow, error) {
	return m.rows, nil
}

func TestListTransactionsUnknownUserGetsEmptyList(t *testing.T) {
	h := handlers.NewTransactionsHandler(&mockTxReader{}, &mockTenants{}, logger.NewWithWriter(io.Discard))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/transactions", nil), "stranger")
	rec := serve(h.ListTransactions, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response is not a JSON array: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d transactions, want 0", len(got))
	}
}

func TestGetJobStripsPassword(t *testing.T) {
	store := &mockJobStore{
		jobs: map[string]*jobs.IngestDocumentJob{
			"job-1": {JobID: "job-1", UserID: "user-1", Password: "secret", Status: jobs.JobStatusPending},
		},
	}
	h := handlers.NewJobsHandler(store, logger.NewWithWriter(io.Discard))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil), "user-1")
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		h.GetJob(w, r, "job-1")
	}, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("job response leaked the document password")
	}
}

func TestGetJobHidesOtherUsersJobs(t *testing.T) {
	store := &mockJobStore{
		jobs: map[string]*jobs.IngestDocumentJob{
			"job-1": {JobID: "job-1", UserID: "user-other", Status: jobs.JobStatusPending},
		},
	}
	h := handlers.NewJobsHandler(store, logger.NewWithWriter(io.Discard))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil), "user-1")
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		h.GetJob(w, r, "job-1")
	}, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d for another user's job", rec.Code, http.StatusNotFound)
	}
}

func TestListJobsScopedToCaller(t *testing.T) {
	store := &mockJobStore{
		jobs: map[string]*jobs.IngestDocumentJob{
			"job-1": {JobID: "job-1", UserID: "user-1", DocumentID: "doc-1", Status: jobs.JobStatusPending},
			"job-2": {JobID: "job-2", UserID: "user-other", DocumentID: "doc-2", GCSURI: "gs://b/doc-2.pdf", Status: jobs.JobStatusPending},
		},
	}
	h := handlers.NewJobsHandler(store, logger.NewWithWriter(io.Discard))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), "user-1")
	rec := serve(h.ListJobs, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Jobs  []*jobs.IngestDocumentJob `json:"jobs"`
		Count int                       `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("got %d jobs, want only the caller's 1", len(resp.Jobs))
	}
	if resp.Jobs[0].JobID != "job-1" {
		t.Errorf("listed job = %q, want job-1", resp.Jobs[0].JobID)
	}
	if strings.Contains(rec.Body.String(), "user-other") || strings.Contains(rec.Body.String(), "doc-2") {
		t.Error("listing leaked another user's job details")
	}
}

type mockJobStore struct {
	jobs map[string]*jobs.IngestDocumentJob
}

func (m *mockJobStore) SaveJob(ctx context.Context, job *jobs.IngestDocumentJob) error {
	m.jobs[job.JobID] = job
	return nil
}

func (m *mockJobStore) GetJob(ctx context.Context, jobID string) (*jobs.IngestDocumentJob, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	jobCopy := *job
	return &jobCopy, nil
}

func (m *mockJobStore) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestDocumentJob, error) {
	var out []*jobs.IngestDocumentJob
	for _, j := range m.jobs {
		if filter.UserID != "" && j.UserID != filter.UserID {
			continue
		}
		jobCopy := *j
		out = append(out, &jobCopy)
	}
	return out, nil
}

func (m *mockJobStore) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	return nil
}
