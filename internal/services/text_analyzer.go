package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/progress"
)

// ErrEmptyText rejects a text analysis request with nothing to analyze.
var ErrEmptyText = errors.New("text must not be empty")

// TextAnalyzerFunction runs the text-only pipeline for pasted text. When the
// request names a record, progress and the result are written to it.
type TextAnalyzerFunction struct {
	store        *StatusStore
	orchestrator *Orchestrator
}

func NewTextAnalyzer(ctx context.Context) (*TextAnalyzerFunction, error) {
	config, err := LoadPipelineConfig()
	if err != nil {
		return nil, err
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
	return &TextAnalyzerFunction{
		store:        NewStatusStore(firestoreClient, config.CollectionName),
		orchestrator: o,
	}, nil
}

func (f *TextAnalyzerFunction) Process(ctx context.Context, req *models.AnalyzeTextRequest) (*models.PipelineResult, error) {
	logCtx := slog.With("documentId", req.DocumentID, "textLength", len(req.Text))
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	var onStatus progress.StatusFunc
	if req.DocumentID != "" {
		onStatus = f.store.Callback(req.DocumentID)
	}
	result, err := f.orchestrator.RunFromText(ctx, req.Text, onStatus)
	if err != nil {
		return nil, f.store.handleError(ctx, logCtx, req.DocumentID, "text analysis failed", err)
	}

	if req.DocumentID != "" {
		if err := f.store.SaveResult(ctx, req.DocumentID, result, ""); err != nil {
			// The caller still gets the result in the response.
			logCtx.Error("Failed to store result on record", "error", err)
		}
	}
	logCtx.Info("Text analysis finished.", "runId", result.RunID)
	return result, nil
}
