package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/extraction"
	"github.com/dvloznov/statement-ingest/internal/gcs"
	infraBQ "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pdfgate"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/tenant"
)

// ingest runs the pipeline synchronously for one statement already sitting in
// GCS. Useful for backfills and local debugging without the API in front.
func main() {
	var (
		gcsURI   = flag.String("gcs-uri", "", "GCS URI of the statement PDF (e.g. gs://bucket/file.pdf)")
		userID   = flag.String("user", "", "External user identifier the statement belongs to")
		password = flag.String("password", "", "Document password, if the statement is encrypted")
	)
	flag.Parse()

	log := logger.New()

	if *gcsURI == "" {
		log.Fatal().Msg("--gcs-uri is required")
	}
	if *userID == "" {
		log.Fatal().Msg("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := infraBQ.NewStore(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()

	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcsClient.Close()

	docRepo := infraBQ.NewDocumentRepository(store)
	tenants := tenant.NewManager(cfg.KEK, infraBQ.NewTenantRepository(store))

	tc, err := tenants.ResolveOrCreate(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve tenant")
	}

	// Register a document record so the run has something to track.
	documentID := uuid.NewString()
	doc := &infraBQ.DocumentRow{
		DocumentID:       documentID,
		TenantID:         tc.TenantID,
		GCSURI:           *gcsURI,
		OriginalFilename: gcs.Filename(*gcsURI),
		Status:           infraBQ.DocumentStatusPending,
		UploadTS:         time.Now(),
	}
	if err := docRepo.InsertDocument(ctx, doc); err != nil {
		log.Fatal().Err(err).Msg("Failed to register document")
	}

	categories := infraBQ.NewCategoryRepository(store)
	ingestor := pipeline.NewIngestor(&pipeline.Deps{
		Storage:      gcsClient,
		Gate:         pdfgate.NewDefault(),
		Extractor:    extraction.NewGeminiExtractor(cfg.GeminiModel, categories),
		Tenants:      tenants,
		Rules:        infraBQ.NewRuleRepository(store),
		Transactions: infraBQ.NewTransactionRepository(store),
		Runs:         infraBQ.NewRunRepository(store),
		Documents:    docRepo,
		Categories:   categories,
	})

	log.Info().
		Str("gcs_uri", *gcsURI).
		Str("document_id", documentID).
		Msg("Starting ingestion")

	err = ingestor.Ingest(ctx, *userID, documentID, *gcsURI, *password)
	if errors.Is(err, pipeline.ErrDocumentBlocked) {
		log.Fatal().Str("document_id", documentID).
			Msg("Document is password-protected; re-run with --password")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Println("Ingestion completed successfully.")
}
