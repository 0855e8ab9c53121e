package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/progress"
)

// StatusStore keeps one Firestore document per submitted file.
type StatusStore struct {
	client     *firestore.Client
	collection string
}

func NewStatusStore(client *firestore.Client, collection string) *StatusStore {
	return &StatusStore{client: client, collection: collection}
}

func (s *StatusStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

// FindByHash returns the id of an existing record for the same file content.
func (s *StatusStore) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

// Create adds a new record and returns its id.
func (s *StatusStore) Create(ctx context.Context, rec models.AnalysisRecord) (string, error) {
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	ref, _, err := s.client.Collection(s.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create analysis record: %w", err)
	}
	return ref.ID, nil
}

func (s *StatusStore) Update(ctx context.Context, id string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	if _, err := s.doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update analysis record %s: %w", id, err)
	}
	return nil
}

// Callback returns the status sink for one record. Complete is not written
// here: SaveResult sets it together with the payload, so a reader never sees
// a complete record without its result.
func (s *StatusStore) Callback(id string) progress.StatusFunc {
	return func(ctx context.Context, u models.StatusUpdate) error {
		if u.State == models.StateComplete {
			return nil
		}
		updates := []firestore.Update{
			{Path: "status", Value: string(u.State)},
			{Path: "progress", Value: u.Progress},
		}
		if u.State == models.StateError {
			updates = append(updates, firestore.Update{Path: "errorDetails", Value: u.Message})
		}
		return s.Update(ctx, id, updates...)
	}
}

// MarkFailed moves the record to the error state.
func (s *StatusStore) MarkFailed(ctx context.Context, id, details string) error {
	return s.Update(ctx, id,
		firestore.Update{Path: "status", Value: string(models.StateError)},
		firestore.Update{Path: "errorDetails", Value: details},
	)
}

// SaveResult stores the final payload and completes the record.
func (s *StatusStore) SaveResult(ctx context.Context, id string, result *models.PipelineResult, resultURI string) error {
	fields, err := resultFields(result)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.Update(ctx, id,
		firestore.Update{Path: "result", Value: fields},
		firestore.Update{Path: "resultUri", Value: resultURI},
		firestore.Update{Path: "status", Value: string(models.StateComplete)},
		firestore.Update{Path: "progress", Value: 100},
		firestore.Update{Path: "completedAt", Value: now},
	)
}

// resultFields converts the result to a plain map so the stored document uses
// the same camelCase keys as the JSON result object.
func resultFields(result *models.PipelineResult) (map[string]any, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pipeline result: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("failed to convert pipeline result: %w", err)
	}
	return fields, nil
}

// handleError logs, marks the record failed and returns the combined error.
func (s *StatusStore) handleError(ctx context.Context, logCtx *slog.Logger, id, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if id != "" {
		if err := s.MarkFailed(ctx, id, fullError); err != nil {
			logCtx.Error("CRITICAL: Failed to update Firestore status to error after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
