package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fingerprint"
	infra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pdfgate"
	"github.com/dvloznov/statement-ingest/internal/rules"
	"github.com/dvloznov/statement-ingest/internal/tenant"
)

// ErrDocumentBlocked indicates ingestion halted because the document is
// encrypted and no valid password is available. The document and run are
// already marked BLOCKED when this is returned; retrying without a new
// password cannot succeed.
var ErrDocumentBlocked = errors.New("pipeline: document blocked pending password")

// PipelineStep is a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID     string
	DocumentID string
	GCSURI     string
	Password   string

	RunID  string
	Tenant tenant.Context

	PDFBytes  []byte
	Extracted []domain.TransactionInput
	Rules     []rules.Rule
	Counts    infra.RunCounts
}

// Step 1: ResolveTenantStep maps the user to a tenant, creating one on first
// contact.
type ResolveTenantStep struct {
	deps *Deps
}

func (s *ResolveTenantStep) Execute(ctx context.Context, state *PipelineState) error {
	tc, err := s.deps.Tenants.ResolveOrCreate(ctx, state.UserID)
	if err != nil {
		return fmt.Errorf("resolving tenant: %w", err)
	}
	state.Tenant = tc
	return nil
}

// Step 2: StartRunStep records a new ingestion run (status=RUNNING).
type StartRunStep struct {
	deps *Deps
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID := uuid.NewString()
	if err := s.deps.Runs.StartRun(ctx, runID, state.Tenant.TenantID, state.DocumentID); err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	state.RunID = runID
	return nil
}

// Step 3: FetchDocumentStep downloads the statement bytes from GCS.
type FetchDocumentStep struct {
	deps *Deps
}

func (s *FetchDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.deps.Storage.Fetch(ctx, state.GCSURI)
	if err != nil {
		s.deps.failRun(ctx, state, err)
		return fmt.Errorf("fetching document: %w", err)
	}
	state.PDFBytes = data
	return nil
}

// Step 4: GateDocumentStep checks document encryption and strips it when a
// valid password is available. Encrypted documents without one park the run
// and the document in BLOCKED until the user supplies a password.
type GateDocumentStep struct {
	deps *Deps
}

func (s *GateDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.deps.Gate.CheckPassword(state.PDFBytes, state.Password)
	if errors.Is(err, pdfgate.ErrIncorrectPassword) {
		s.deps.blockRun(ctx, state, "incorrect document password")
		return fmt.Errorf("%w: %w", ErrDocumentBlocked, err)
	}
	if err != nil {
		s.deps.failRun(ctx, state, err)
		return fmt.Errorf("checking document access: %w", err)
	}

	if res.NeedsPassword {
		s.deps.blockRun(ctx, state, "document password required")
		return ErrDocumentBlocked
	}

	if res.Encrypted {
		plaintext, err := s.deps.Gate.Decrypt(ctx, state.PDFBytes, state.Password)
		if err != nil {
			s.deps.failRun(ctx, state, err)
			return fmt.Errorf("decrypting document: %w", err)
		}
		state.PDFBytes = plaintext
	}
	return nil
}

// Step 5: ExtractStep calls the model with the (now plaintext) statement.
type ExtractStep struct {
	deps *Deps
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := s.deps.Extractor.Extract(ctx, state.PDFBytes)
	if err != nil {
		s.deps.failRun(ctx, state, err)
		return fmt.Errorf("extracting transactions: %w", err)
	}
	state.Extracted = txs
	state.Counts.Extracted = int64(len(txs))
	return nil
}

// Step 6: LoadRulesStep loads the tenant's enabled rules in stored order.
type LoadRulesStep struct {
	deps *Deps
}

func (s *LoadRulesStep) Execute(ctx context.Context, state *PipelineState) error {
	ruleList, err := s.deps.Rules.ListEnabledRules(ctx, state.Tenant.TenantID)
	if err != nil {
		s.deps.failRun(ctx, state, err)
		return fmt.Errorf("loading rules: %w", err)
	}
	state.Rules = ruleList
	return nil
}

// Step 7: StoreTransactionsStep runs each candidate through the rule engine,
// fingerprints it and stores it unless the tenant already has it.
type StoreTransactionsStep struct {
	deps *Deps
}

func (s *StoreTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	// Snapshot of the tenant's known fingerprints; the MERGE on insert stays
	// authoritative for anything written after the snapshot.
	existing, err := s.deps.Transactions.ListFingerprints(ctx, state.Tenant.TenantID)
	if err != nil {
		s.deps.failRun(ctx, state, err)
		return fmt.Errorf("listing fingerprints: %w", err)
	}

	for _, tx := range state.Extracted {
		result := rules.Apply(tx, state.Rules)
		if result.Skip {
			state.Counts.Skipped++
			continue
		}

		// Fingerprint the candidate as extracted, before any overrides.
		// Rule changes between uploads must not change the fingerprint,
		// or re-uploading the same statement stores duplicates.
		fp := fingerprint.ForInput(state.UserID, tx)

		if result.Overrides.AmountMinor != nil {
			tx.AmountMinor = *result.Overrides.AmountMinor
		}

		if existing[fp] {
			state.Counts.Skipped++
			log.Debug().
				Str("fingerprint", fp).
				Msg("duplicate transaction skipped")
			continue
		}

		categoryID, err := s.resolveCategory(ctx, tx, result)
		if err != nil {
			s.deps.failRun(ctx, state, err)
			return fmt.Errorf("resolving category: %w", err)
		}

		row := buildTransactionRow(state, tx, result, fp, categoryID)
		stored, err := s.deps.Transactions.InsertIfAbsent(ctx, row)
		if err != nil {
			s.deps.failRun(ctx, state, err)
			return fmt.Errorf("storing transaction: %w", err)
		}
		existing[fp] = true
		if stored {
			state.Counts.Stored++
		} else {
			state.Counts.Skipped++
			log.Debug().
				Str("fingerprint", fp).
				Msg("duplicate transaction skipped")
		}
	}
	return nil
}

// resolveCategory prefers a rule override over the model's suggestion. The
// override is already a category ID; the model only knows names.
func (s *StoreTransactionsStep) resolveCategory(ctx context.Context, tx domain.TransactionInput, result rules.Result) (string, error) {
	if result.Overrides.CategoryID != nil {
		return *result.Overrides.CategoryID, nil
	}
	if tx.Category == "" || s.deps.Categories == nil {
		return "", nil
	}
	return s.deps.Categories.FindCategoryIDByName(ctx, tx.Category)
}

func buildTransactionRow(state *PipelineState, tx domain.TransactionInput, result rules.Result, fp, categoryID string) *infra.TransactionRow {
	row := &infra.TransactionRow{
		TransactionID:   uuid.NewString(),
		TenantID:        state.Tenant.TenantID,
		DocumentID:      state.DocumentID,
		IngestionRunID:  state.RunID,
		Fingerprint:     fp,
		TransactionDate: civil.DateOf(tx.Date),
		MerchantName:    tx.MerchantName,
		AmountMinor:     tx.AmountMinor,
		Currency:        tx.Currency,
		RulesApplied:    int64(result.RulesApplied),
		CreatedTS:       time.Now(),
	}
	if categoryID != "" {
		row.CategoryID = bq.NullString{StringVal: categoryID, Valid: true}
	}
	row.Confidence = bq.NullInt64{Int64: tx.Confidence, Valid: true}
	return row
}

// Step 8: MarkSuccessStep finishes the run and flips the document to
// PROCESSED.
type MarkSuccessStep struct {
	deps *Deps
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.deps.Runs.MarkSucceeded(ctx, state.RunID, state.Counts); err != nil {
		return fmt.Errorf("marking run succeeded: %w", err)
	}
	if err := s.deps.Documents.UpdateDocumentStatus(ctx, state.DocumentID, infra.DocumentStatusProcessed); err != nil {
		return fmt.Errorf("marking document processed: %w", err)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
	}
	return nil
}
