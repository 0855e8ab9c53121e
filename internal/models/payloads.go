package models

// These structs define the JSON payloads for HTTP requests and responses
// between the Cloud Workflow and the worker Cloud Functions.

// WorkflowArgument is the execution argument the starter hands to the workflow.
type WorkflowArgument struct {
	DocumentID string `json:"documentId"`
	Bucket     string `json:"bucket"`
	Object     string `json:"object"`
	MediaType  string `json:"mediaType"`
}

// RunPipelineRequest is the input for the analysis-runner function.
type RunPipelineRequest struct {
	DocumentID  string `json:"documentId"`
	GCSUri      string `json:"gcsUri"`
	MediaType   string `json:"mediaType"`
	ExecutionID string `json:"executionId"`
}

// RunPipelineResponse is the output of the analysis-runner function.
type RunPipelineResponse struct {
	Status       string `json:"status"`
	ResultGCSUri string `json:"resultGcsUri"`
}

// SaveResultsRequest is the input for the result-saver function.
type SaveResultsRequest struct {
	DocumentID   string `json:"documentId"`
	ResultGCSUri string `json:"resultGcsUri"`
	ExecutionID  string `json:"executionId"`
}

// SaveResultsResponse is the output of the result-saver function.
type SaveResultsResponse struct {
	Status string `json:"status"`
}

// AnalyzeTextRequest is the input for the text-analyzer function.
type AnalyzeTextRequest struct {
	DocumentID string `json:"documentId,omitempty"`
	Text       string `json:"text"`
}
