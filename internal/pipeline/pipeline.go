// Package pipeline orchestrates statement ingestion: tenant resolution,
// document gating, model extraction, rule evaluation and deduplicated
// persistence, with every attempt tracked as an ingestion run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	infra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Deps bundles the collaborators the pipeline steps need. Tests substitute
// mocks; production wiring lives in the binaries.
type Deps struct {
	Storage      StorageService
	Gate         AccessGate
	Extractor    Extractor
	Tenants      TenantResolver
	Rules        RuleSource
	Transactions TransactionStore
	Runs         RunTracker
	Documents    DocumentTracker
	Categories   CategoryResolver
}

// failRun best-effort marks the run FAILED and the document FAILED. The
// original error stays the caller's to return; bookkeeping failures are only
// logged.
func (d *Deps) failRun(ctx context.Context, state *PipelineState, cause error) {
	log := logger.FromContext(ctx)

	reason := ""
	if cause != nil {
		reason = cause.Error()
		const maxLen = 2000
		if len(reason) > maxLen {
			reason = reason[:maxLen]
		}
	}

	if state.RunID != "" {
		if err := d.Runs.MarkFailed(ctx, state.RunID, reason); err != nil {
			log.Error().Err(err).Str("run_id", state.RunID).Msg("failed to mark run failed")
		}
	}
	if err := d.Documents.UpdateDocumentStatus(ctx, state.DocumentID, infra.DocumentStatusFailed); err != nil {
		log.Error().Err(err).Str("document_id", state.DocumentID).Msg("failed to mark document failed")
	}
}

// blockRun parks the run and document in BLOCKED so the user can supply a
// password and resume.
func (d *Deps) blockRun(ctx context.Context, state *PipelineState, reason string) {
	log := logger.FromContext(ctx)

	if state.RunID != "" {
		if err := d.Runs.MarkBlocked(ctx, state.RunID, reason); err != nil {
			log.Error().Err(err).Str("run_id", state.RunID).Msg("failed to mark run blocked")
		}
	}
	if err := d.Documents.UpdateDocumentStatus(ctx, state.DocumentID, infra.DocumentStatusBlocked); err != nil {
		log.Error().Err(err).Str("document_id", state.DocumentID).Msg("failed to mark document blocked")
	}
}

// Ingestor runs the standard ingestion pipeline for uploaded statements.
type Ingestor struct {
	deps *Deps
}

// NewIngestor creates an Ingestor over the given collaborators.
func NewIngestor(deps *Deps) *Ingestor {
	return &Ingestor{deps: deps}
}

// newIngestionPipeline assembles the standard 8-step pipeline.
func (in *Ingestor) newIngestionPipeline() *Pipeline {
	return NewPipeline(
		&ResolveTenantStep{deps: in.deps},
		&StartRunStep{deps: in.deps},
		&FetchDocumentStep{deps: in.deps},
		&GateDocumentStep{deps: in.deps},
		&ExtractStep{deps: in.deps},
		&LoadRulesStep{deps: in.deps},
		&StoreTransactionsStep{deps: in.deps},
		&MarkSuccessStep{deps: in.deps},
	)
}

// Ingest processes one uploaded statement for the given user. A password may
// be empty; encrypted documents then end BLOCKED rather than failed.
func (in *Ingestor) Ingest(ctx context.Context, userID, documentID, gcsURI, password string) error {
	state := &PipelineState{
		UserID:     userID,
		DocumentID: documentID,
		GCSURI:     gcsURI,
		Password:   password,
	}

	log := logger.FromContext(ctx).With().
		Str("document_id", documentID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("gcs_uri", gcsURI).Msg("starting statement ingestion")

	if err := in.newIngestionPipeline().Execute(ctx, state); err != nil {
		if errors.Is(err, ErrDocumentBlocked) {
			log.Warn().Msg("ingestion blocked pending document password")
		} else {
			log.Error().Err(err).Msg("ingestion failed")
		}
		return err
	}

	log.Info().
		Int64("extracted", state.Counts.Extracted).
		Int64("stored", state.Counts.Stored).
		Int64("skipped", state.Counts.Skipped).
		Msg("statement ingestion complete")
	return nil
}

// HandleJob adapts Ingest to the queue's handler contract. Blocked documents
// fail permanently: retrying without user input cannot unblock them.
func (in *Ingestor) HandleJob(ctx context.Context, job jobs.Job) error {
	ingestJob, ok := job.(*jobs.IngestDocumentJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected job type %s", job.GetType()))
	}

	err := in.Ingest(ctx, ingestJob.UserID, ingestJob.DocumentID, ingestJob.GCSURI, ingestJob.Password)
	if errors.Is(err, ErrDocumentBlocked) {
		return jobs.Permanent(err)
	}
	return err
}
