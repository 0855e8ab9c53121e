package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/reference"
)

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		event GCSEvent
		want  string
	}{
		{GCSEvent{Name: "in/letter.pdf", ContentType: "application/pdf"}, models.MediaTypePDF},
		{GCSEvent{Name: "in/letter.PDF", ContentType: "application/octet-stream"}, models.MediaTypePDF},
		{GCSEvent{Name: "scan.jpg"}, "image/jpeg"},
		{GCSEvent{Name: "scan", ContentType: "image/png; charset=binary"}, "image/png"},
		{GCSEvent{Name: "notes.docx"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectMediaType(tt.event), tt.event.Name)
	}
	assert.False(t, supportedMediaTypes["text/plain"])
	assert.True(t, supportedMediaTypes[detectMediaType(GCSEvent{Name: "a.webp"})])
}

func TestCalculateFileHash(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o600))

	got, err := calculateFileHash(p)

	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestExecutionKey(t *testing.T) {
	assert.Equal(t, "result", executionKey(""))
	assert.Equal(t, "3f2c", executionKey("projects/p/locations/l/workflows/w/executions/3f2c"))
}

func TestResultFields_UsesJSONKeys(t *testing.T) {
	res := &models.PipelineResult{
		RunID:                 "run-1",
		Verdict:               &models.ClassificationVerdict{IsRegulatedLetter: true, Confidence: models.ConfidenceMedium},
		ReasoningUndetermined: true,
	}

	fields, err := resultFields(res)

	require.NoError(t, err)
	assert.Equal(t, "run-1", fields["runId"])
	assert.Equal(t, true, fields["reasoningUndetermined"])
	verdict, ok := fields["verdict"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "medium", verdict["confidence"])
	assert.NotContains(t, fields, "parse")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"postal-act", "premiums"}, splitList(" postal-act, ,premiums "))
	assert.Nil(t, splitList(""))
}

func TestLoadPipelineConfig(t *testing.T) {
	t.Setenv("PROJECT_ID", "proj")
	t.Setenv("PARSE_API_KEY", "llx-key")
	t.Setenv("SCREENING_API_KEY", "gsk-key")
	t.Setenv("GUIDELINES", "postal-act")
	t.Setenv("ENTITY_SCORE_THRESHOLD", "0.8")

	cfg, err := LoadPipelineConfig()

	require.NoError(t, err)
	assert.Equal(t, "proj", cfg.Vertex.ProjectID)
	assert.Equal(t, "us-central1", cfg.Vertex.Region)
	assert.Equal(t, "ja", cfg.Language)
	assert.True(t, cfg.Screening.JSONMode)
	assert.Equal(t, []string{"postal-act"}, cfg.Reasoning.GuidelineNames)
	assert.InDelta(t, 0.8, cfg.Entities.ScoreThreshold, 1e-9)
	assert.Nil(t, cfg.referenceSource(nil))

	t.Setenv("REFERENCE_DIR", "/srv/guidelines")
	cfg, err = LoadPipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, reference.DirSource{Dir: "/srv/guidelines"}, cfg.referenceSource(nil))
}

func TestLoadPipelineConfig_RequiresKeys(t *testing.T) {
	t.Setenv("PROJECT_ID", "proj")
	t.Setenv("PARSE_API_KEY", "")
	t.Setenv("SCREENING_API_KEY", "gsk-key")

	_, err := LoadPipelineConfig()

	assert.ErrorContains(t, err, "PARSE_API_KEY")
}
