package pipeline

import (
	"context"

	"github.com/dvloznov/statement-ingest/internal/domain"
	infra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/pdfgate"
	"github.com/dvloznov/statement-ingest/internal/rules"
	"github.com/dvloznov/statement-ingest/internal/tenant"
)

// StorageService fetches statement bytes from object storage.
type StorageService interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// AccessGate checks and strips document encryption before extraction.
type AccessGate interface {
	CheckPassword(data []byte, password string) (pdfgate.CheckResult, error)
	Decrypt(ctx context.Context, data []byte, password string) ([]byte, error)
}

// Extractor turns statement bytes into transaction candidates.
type Extractor interface {
	Extract(ctx context.Context, pdfBytes []byte) ([]domain.TransactionInput, error)
}

// TenantResolver maps an external user identifier to its tenant context.
type TenantResolver interface {
	ResolveOrCreate(ctx context.Context, userID string) (tenant.Context, error)
}

// RuleSource loads a tenant's enabled categorization rules in order.
type RuleSource interface {
	ListEnabledRules(ctx context.Context, tenantID string) ([]rules.Rule, error)
}

// TransactionStore persists transactions with per-tenant fingerprint dedup.
type TransactionStore interface {
	ListFingerprints(ctx context.Context, tenantID string) (map[string]bool, error)
	InsertIfAbsent(ctx context.Context, row *infra.TransactionRow) (bool, error)
}

// RunTracker records the lifecycle of an ingestion run.
type RunTracker interface {
	StartRun(ctx context.Context, runID, tenantID, documentID string) error
	MarkSucceeded(ctx context.Context, runID string, counts infra.RunCounts) error
	MarkFailed(ctx context.Context, runID, reason string) error
	MarkBlocked(ctx context.Context, runID, reason string) error
}

// DocumentTracker transitions document status as ingestion progresses.
type DocumentTracker interface {
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
}

// CategoryResolver maps extracted category names onto the taxonomy.
type CategoryResolver interface {
	FindCategoryIDByName(ctx context.Context, name string) (string, error)
}
