package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
	"github.com/Lllllllleong/lettercheck/internal/models"
)

// RunnerFunction is the run-pipeline workflow step: it analyzes one stored
// document and writes the result JSON to the results bucket.
type RunnerFunction struct {
	storageClient *storage.Client
	store         *StatusStore
	orchestrator  *Orchestrator
	resultsBucket string
}

func NewRunner(ctx context.Context) (*RunnerFunction, error) {
	config, err := LoadPipelineConfig()
	if err != nil {
		return nil, err
	}
	resultsBucket := gcp.GetEnv("RESULTS_BUCKET", "")
	if resultsBucket == "" {
		return nil, fmt.Errorf("RESULTS_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	o, err := newPipeline(ctx, config, storageClient, slog.Default())
	if err != nil {
		return nil, err
	}

	slog.Info("Analysis runner initialized.", "resultsBucket", resultsBucket)
	return &RunnerFunction{
		storageClient: storageClient,
		store:         NewStatusStore(firestoreClient, config.CollectionName),
		orchestrator:  o,
		resultsBucket: resultsBucket,
	}, nil
}

func (f *RunnerFunction) Process(ctx context.Context, req *models.RunPipelineRequest) (*models.RunPipelineResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting pipeline run.", "gcsUri", req.GCSUri)

	bucket, object, err := gcp.ParseGCSUri(req.GCSUri)
	if err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "invalid document uri", err)
	}

	tempDir, err := os.MkdirTemp("", "analysis-runner-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "document"+path.Ext(object))
	if err := gcp.DownloadToFile(ctx, f.storageClient, bucket, object, localPath); err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "failed to download document", err)
	}

	doc := models.Document{Path: localPath, MediaType: req.MediaType, Name: path.Base(object)}
	result, err := f.orchestrator.RunFromDocument(ctx, doc, f.store.Callback(req.DocumentID))
	if err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "analysis pipeline failed", err)
	}

	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "failed to marshal pipeline result", err)
	}
	// One object per execution; a retried step keeps the first result written.
	objectName := fmt.Sprintf("%s/%s.json", req.DocumentID, executionKey(req.ExecutionID))
	if err := gcp.SaveToGCSAtomically(ctx, f.storageClient.Bucket(f.resultsBucket), objectName, string(content)); err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "failed to save pipeline result", err)
	}

	resultURI := fmt.Sprintf("gs://%s/%s", f.resultsBucket, objectName)
	logCtx.Info("Pipeline run finished.", "resultGcsUri", resultURI, "runId", result.RunID)
	return &models.RunPipelineResponse{Status: "success", ResultGCSUri: resultURI}, nil
}

func executionKey(executionID string) string {
	if executionID == "" {
		return "result"
	}
	return path.Base(executionID)
}
