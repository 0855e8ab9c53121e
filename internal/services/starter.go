package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/pdfinfo"
)

// Media types accepted for analysis. Images have no text layer, so their
// spans are always reported as not found.
var supportedMediaTypes = map[string]bool{
	models.MediaTypePDF: true,
	"image/png":         true,
	"image/jpeg":        true,
	"image/webp":        true,
}

type StarterConfig struct {
	ProjectID         string
	FirestoreDatabase string
	CollectionName    string
	WorkflowID        string
	WorkflowLocation  string
}

// StarterFunction reacts to uploads: it records the file and hands it to the
// analysis workflow.
type StarterFunction struct {
	storageClient    *storage.Client
	executionsClient *executions.Client
	store            *StatusStore
	config           StarterConfig
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func NewStarter(ctx context.Context) (*StarterFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := StarterConfig{
		ProjectID:         projectID,
		FirestoreDatabase: gcp.GetEnv("FIRESTORE_DATABASE", ""),
		CollectionName:    gcp.GetEnv("FIRESTORE_COLLECTION", "analyses"),
		WorkflowLocation:  gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:        gcp.GetEnv("WORKFLOW_ID", "document-analysis"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	slog.Info("Analysis starter initialized.", "workflowId", config.WorkflowID)
	return &StarterFunction{
		storageClient:    storageClient,
		executionsClient: executionsClient,
		store:            NewStatusStore(firestoreClient, config.CollectionName),
		config:           config,
	}, nil
}

func (f *StarterFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	mediaType := detectMediaType(e)
	if !supportedMediaTypes[mediaType] {
		logCtx.Warn("Unsupported media type. Skipping.", "mediaType", mediaType)
		return nil
	}

	tempDir, err := os.MkdirTemp("", "analysis-starter-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source"+path.Ext(e.Name))
	if err := gcp.DownloadToFile(ctx, f.storageClient, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existingID, isDuplicate, err := f.store.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existingID)
		return nil
	}

	docID, err := f.store.Create(ctx, models.AnalysisRecord{
		FileHash:         fileHash,
		OriginalFilename: path.Base(e.Name),
		SourceURI:        fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
		MediaType:        mediaType,
		Status:           models.StatePending,
	})
	if err != nil {
		logCtx.Error("Failed to create analysis record", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docID)
	logCtx.Info("Created analysis record in Firestore.")

	if mediaType == models.MediaTypePDF {
		pageCount, err := pdfinfo.Inspect(sourcePath, filepath.Join(tempDir, "optimized.pdf"))
		if err != nil {
			return f.store.handleError(ctx, logCtx, docID, "failed to inspect PDF", err)
		}
		if err := f.store.Update(ctx, docID, firestore.Update{Path: "pageCount", Value: pageCount}); err != nil {
			return f.store.handleError(ctx, logCtx, docID, "failed to record page count", err)
		}
		logCtx.Info("PDF validated.", "pageCount", pageCount)
	}

	if err := f.triggerWorkflow(ctx, logCtx, docID, models.WorkflowArgument{
		DocumentID: docID,
		Bucket:     e.Bucket,
		Object:     e.Name,
		MediaType:  mediaType,
	}); err != nil {
		return err
	}

	logCtx.Info("Hand-off to workflow complete.")
	return nil
}

func (f *StarterFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docID string, arg models.WorkflowArgument) error {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(arg)
	if err != nil {
		return f.store.handleError(ctx, logCtx, docID, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	execution, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.store.handleError(ctx, logCtx, docID, "failed to trigger workflow execution", err)
	}
	if err := f.store.Update(ctx, docID, firestore.Update{Path: "workflowExecutionId", Value: execution.GetName()}); err != nil {
		// The run is already under way; the id is only for traceability.
		logCtx.Warn("Failed to record workflow execution id", "error", err)
	}
	return nil
}

// detectMediaType trusts the object's content type and falls back to the
// file extension.
func detectMediaType(e GCSEvent) string {
	if mt, _, err := mime.ParseMediaType(e.ContentType); err == nil && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(path.Ext(e.Name)) {
	case ".pdf":
		return models.MediaTypePDF
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	return ""
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
