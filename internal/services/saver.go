package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
	"github.com/Lllllllleong/lettercheck/internal/models"
)

// SaverFunction is the save-results workflow step.
type SaverFunction struct {
	storageClient *storage.Client
	store         *StatusStore
}

func NewSaver(ctx context.Context) (*SaverFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID, gcp.GetEnv("FIRESTORE_DATABASE", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &SaverFunction{
		storageClient: storageClient,
		store:         NewStatusStore(firestoreClient, gcp.GetEnv("FIRESTORE_COLLECTION", "analyses")),
	}, nil
}

func (f *SaverFunction) Process(ctx context.Context, req *models.SaveResultsRequest) (*models.SaveResultsResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Saving analysis result.", "resultGcsUri", req.ResultGCSUri)

	bucket, object, err := gcp.ParseGCSUri(req.ResultGCSUri)
	if err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "invalid result uri", err)
	}
	raw, err := gcp.ReadObject(ctx, f.storageClient.Bucket(bucket), object)
	if err != nil {
		// Retryable by the workflow; the record stays in its last state.
		logCtx.Error("Failed to read result object", "error", err)
		return nil, err
	}

	var result models.PipelineResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "result object is not a pipeline result", err)
	}
	if err := f.store.SaveResult(ctx, req.DocumentID, &result, req.ResultGCSUri); err != nil {
		logCtx.Error("Failed to store result on record", "error", err)
		return nil, err
	}

	logCtx.Info("Analysis result saved.", "runId", result.RunID)
	return &models.SaveResultsResponse{Status: string(models.StateComplete)}, nil
}
