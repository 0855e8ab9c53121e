package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/services"
)

var (
	runnerInstance *services.RunnerFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleRunPipeline", handleRunPipeline)
}

// main is required by the Go Functions Framework.
func main() {}

func handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runnerInstance, initErr = services.NewRunner(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Runner initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.RunPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" || req.GCSUri == "" {
		http.Error(w, "Bad Request: documentId and gcsUri are required", http.StatusBadRequest)
		return
	}

	res, err := runnerInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
