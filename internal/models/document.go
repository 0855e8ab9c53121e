package models

import "time"

// AnalysisRecord is the Firestore document tracking one submitted file.
// It holds the status, progress and final payload of the analysis run.
type AnalysisRecord struct {
	FileHash            string          `firestore:"fileHash,omitempty"`
	OriginalFilename    string          `firestore:"originalFilename,omitempty"`
	SourceURI           string          `firestore:"sourceUri,omitempty"`
	MediaType           string          `firestore:"mediaType,omitempty"`
	Status              ProcessingState `firestore:"status,omitempty"`
	Progress            int             `firestore:"progress"`
	ErrorDetails        string          `firestore:"errorDetails,omitempty"`
	PageCount           int             `firestore:"pageCount,omitempty"`
	ResultURI           string          `firestore:"resultUri,omitempty"`
	WorkflowExecutionID string          `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time       `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time       `firestore:"updatedAt,omitempty"`
	CompletedAt         time.Time       `firestore:"completedAt,omitempty"`
}
