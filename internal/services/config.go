package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
	"github.com/Lllllllleong/lettercheck/internal/llm"
	"github.com/Lllllllleong/lettercheck/internal/locator"
	"github.com/Lllllllleong/lettercheck/internal/parsejob"
	"github.com/Lllllllleong/lettercheck/internal/progress"
	"github.com/Lllllllleong/lettercheck/internal/reference"
)

// PipelineConfig is the environment-driven configuration shared by the
// functions that run the analysis pipeline.
type PipelineConfig struct {
	ProjectID         string
	Region            string
	FirestoreDatabase string
	CollectionName    string

	Language string

	Parse     parsejob.Config
	Screening llm.ChatConfig
	Vertex    gcp.VertexConfig
	Entities  EntityDetectorConfig
	Reasoning ReasonerConfig
	Locator   locator.Config
	Progress  progress.Config

	ReferenceDir    string
	ReferenceBucket string
	ReferencePrefix string
}

func LoadPipelineConfig() (PipelineConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return PipelineConfig{}, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	region := gcp.GetEnv("REGION", "us-central1")

	cfg := PipelineConfig{
		ProjectID:         projectID,
		Region:            region,
		FirestoreDatabase: gcp.GetEnv("FIRESTORE_DATABASE", ""),
		CollectionName:    gcp.GetEnv("FIRESTORE_COLLECTION", "analyses"),
		Language:          gcp.GetEnv("DOCUMENT_LANGUAGE", "ja"),
		Parse: parsejob.Config{
			BaseURL:      gcp.GetEnv("PARSE_API_URL", "https://api.cloud.llamaindex.ai"),
			APIKey:       gcp.GetEnv("PARSE_API_KEY", ""),
			PollInterval: gcp.GetEnvDuration("PARSE_POLL_INTERVAL", 0),
			MaxAttempts:  gcp.GetEnvInt("PARSE_MAX_ATTEMPTS", 0),
		},
		Screening: llm.ChatConfig{
			BaseURL:     gcp.GetEnv("SCREENING_API_URL", "https://api.groq.com/openai/v1"),
			APIKey:      gcp.GetEnv("SCREENING_API_KEY", ""),
			Model:       gcp.GetEnv("SCREENING_MODEL", "llama-3.3-70b-versatile"),
			Temperature: float32(gcp.GetEnvFloat("SCREENING_TEMPERATURE", 0)),
			Timeout:     gcp.GetEnvDuration("SCREENING_TIMEOUT", 0),
			JSONMode:    true,
		},
		Vertex: gcp.VertexConfig{
			ProjectID:     projectID,
			Region:        gcp.GetEnv("VERTEX_REGION", region),
			DetectorModel: gcp.GetEnv("DETECTOR_MODEL", ""),
			ReasonerModel: gcp.GetEnv("REASONER_MODEL", ""),
		},
		Entities: EntityDetectorConfig{
			ScoreThreshold: gcp.GetEnvFloat("ENTITY_SCORE_THRESHOLD", 0.7),
		},
		Reasoning: ReasonerConfig{
			GuidelineNames: splitList(gcp.GetEnv("GUIDELINES", "")),
		},
		Locator: locator.Config{
			Workers: gcp.GetEnvInt("LOCATOR_WORKERS", 0),
		},
		Progress: progress.Config{
			CallTimeout: gcp.GetEnvDuration("STATUS_CALL_TIMEOUT", 0),
		},
		ReferenceDir:    gcp.GetEnv("REFERENCE_DIR", ""),
		ReferenceBucket: gcp.GetEnv("REFERENCE_BUCKET", ""),
		ReferencePrefix: gcp.GetEnv("REFERENCE_PREFIX", "guidelines"),
	}
	if cfg.Parse.APIKey == "" {
		return PipelineConfig{}, fmt.Errorf("PARSE_API_KEY environment variable must be set")
	}
	if cfg.Screening.APIKey == "" {
		return PipelineConfig{}, fmt.Errorf("SCREENING_API_KEY environment variable must be set")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// referenceSource picks the guideline source. A bucket wins over a directory;
// with neither, the reasoner runs without guidance.
func (c PipelineConfig) referenceSource(storageClient *storage.Client) reference.Source {
	switch {
	case c.ReferenceBucket != "":
		return reference.GCSSource{Bucket: storageClient.Bucket(c.ReferenceBucket), Prefix: c.ReferencePrefix}
	case c.ReferenceDir != "":
		return reference.DirSource{Dir: c.ReferenceDir}
	}
	return nil
}

// newPipeline wires every stage from configuration. The Vertex AI client
// lives as long as the function instance.
func newPipeline(ctx context.Context, cfg PipelineConfig, storageClient *storage.Client, logger *slog.Logger) (*Orchestrator, error) {
	parser, err := parsejob.New(cfg.Parse, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse client: %w", err)
	}
	chat, err := llm.NewChatClient(cfg.Screening, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create screening client: %w", err)
	}
	vertex, err := gcp.NewVertexClient(ctx, cfg.Vertex)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	detector, err := NewEntityDetector(vertex.Detector(), cfg.Entities, logger)
	if err != nil {
		vertex.Close()
		return nil, err
	}
	screener, err := NewScreener(chat, logger)
	if err != nil {
		vertex.Close()
		return nil, err
	}
	var guidelines GuidelineProvider
	if src := cfg.referenceSource(storageClient); src != nil {
		guidelines = reference.NewStore(src, logger)
	}
	reasoner, err := NewReasoner(vertex.Reasoner(), guidelines, cfg.Reasoning, logger)
	if err != nil {
		vertex.Close()
		return nil, err
	}

	o, err := NewOrchestrator(Stages{
		Parser:   parser,
		Detector: detector,
		Screener: screener,
		Reasoner: reasoner,
		Locator:  locator.New(cfg.Locator, logger),
	}, OrchestratorConfig{Language: cfg.Language, Progress: cfg.Progress}, logger)
	if err != nil {
		vertex.Close()
		return nil, err
	}
	return o, nil
}
