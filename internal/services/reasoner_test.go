package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/reference"
)

const reasoningReplyFixture = `{
  "verdict": {
    "isRegulatedLetter": true,
    "confidence": "HIGH",
    "reason": "addressed invoice to a specific recipient",
    "documentType": "invoice",
    "matchedPatterns": ["billing statement"]
  },
  "issues": [
    {"category": "premiums act", "description": "unfounded superlative", "quotedLocation": " lowest price in Japan ", "suggestedFix": "remove the claim", "severity": "High"},
    {"category": "privacy", "description": "recipient data shown", "quotedLocation": "", "suggestedFix": "mask it", "severity": "urgent"}
  ],
  "rewrites": [
    {"original": "lowest price in Japan", "suggested": "competitive prices", "reason": "substantiation"},
    {"original": "  ", "suggested": "dropped"}
  ],
  "explanation": "This is an invoice and must be sent as a letter.",
  "summary": "regulated letter, one advertising issue"
}`

func TestReason_DecodesReply(t *testing.T) {
	model := &scriptedModel{reply: "```json\n" + reasoningReplyFixture + "\n```"}
	r, err := NewReasoner(model, nil, ReasonerConfig{}, quietLogger())
	require.NoError(t, err)

	res := r.Reason(context.Background(), "text", nil)

	assert.False(t, res.Undetermined)
	assert.True(t, res.Verdict.IsRegulatedLetter)
	assert.Equal(t, models.ConfidenceHigh, res.Verdict.Confidence)
	assert.Equal(t, "invoice", res.Verdict.DocumentType)
	assert.Equal(t, []string{"billing statement"}, res.Verdict.MatchedPatterns)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, "lowest price in Japan", res.Issues[0].QuotedLocation)
	assert.Equal(t, models.SeverityHigh, res.Issues[0].Severity)
	assert.Equal(t, models.SeverityMedium, res.Issues[1].Severity)
	assert.Equal(t, []models.Rewrite{{Original: "lowest price in Japan", Suggested: "competitive prices", Reason: "substantiation"}}, res.Rewrites)
	assert.Equal(t, "regulated letter, one advertising issue", res.Summary)
	assert.Equal(t, "This is an invoice and must be sent as a letter.", res.Explanation)
}

func TestReason_MalformedReplyFallsBackToDefault(t *testing.T) {
	cases := map[string]*scriptedModel{
		"not json":        {reply: "The document looks fine to me."},
		"missing verdict": {reply: `{"issues":[]}`},
		"model error":     {err: errors.New("deadline exceeded")},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := NewReasoner(model, nil, ReasonerConfig{}, quietLogger())
			require.NoError(t, err)

			res := r.Reason(context.Background(), "text", nil)

			assert.Equal(t, DefaultReasoning(), res)
			assert.True(t, res.Undetermined)
			assert.False(t, res.Verdict.IsRegulatedLetter)
			assert.Equal(t, models.ConfidenceLow, res.Verdict.Confidence)
			assert.Empty(t, res.Issues)
			assert.Equal(t, "no issues found", res.Summary)
		})
	}
}

func TestReason_CleanVerdictIsNotUndetermined(t *testing.T) {
	model := &scriptedModel{reply: `{"verdict":{"isRegulatedLetter":false,"confidence":"certain"},"issues":[]}`}
	r, err := NewReasoner(model, nil, ReasonerConfig{}, quietLogger())
	require.NoError(t, err)

	res := r.Reason(context.Background(), "text", nil)

	assert.False(t, res.Undetermined)
	assert.Equal(t, models.ConfidenceLow, res.Verdict.Confidence)
	assert.Equal(t, "no issues found", res.Summary)
	assert.NotNil(t, res.Rewrites)
}

func TestReason_PromptCarriesGuidelinesAndFindings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postal-act.md"), []byte("Invoices are letters.\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "premiums.txt"), []byte("No unfounded superlatives."), 0o600))
	store := reference.NewStore(reference.DirSource{Dir: dir}, quietLogger())

	model := &scriptedModel{reply: reasoningReplyFixture}
	r, err := NewReasoner(model, store, ReasonerConfig{GuidelineNames: []string{"postal-act", "missing"}}, quietLogger())
	require.NoError(t, err)

	prior := []models.ScreeningFinding{{Phrase: "lowest price in Japan", Severity: models.SeverityHigh, Reason: "superlative"}}
	r.Reason(context.Background(), "Dear <PERSON>, lowest price in Japan", prior)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	assert.Contains(t, prompt, "### postal-act\nInvoices are letters.")
	assert.NotContains(t, prompt, "No unfounded superlatives.")
	assert.Contains(t, prompt, `"phrase": "lowest price in Japan"`)
	assert.Contains(t, prompt, "Dear <PERSON>, lowest price in Japan")
}

func TestReason_AllGuidelinesWhenNoneNamed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("first"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("second"), 0o600))
	model := &scriptedModel{reply: reasoningReplyFixture}
	r, err := NewReasoner(model, reference.NewStore(reference.DirSource{Dir: dir}, quietLogger()), ReasonerConfig{}, quietLogger())
	require.NoError(t, err)

	r.Reason(context.Background(), "text", nil)

	assert.Contains(t, model.prompts[0], "### a\nfirst\n### b\nsecond")
}

func TestReason_MissingGuidanceIsNotAnError(t *testing.T) {
	model := &scriptedModel{reply: reasoningReplyFixture}
	store := reference.NewStore(reference.DirSource{Dir: filepath.Join(t.TempDir(), "absent")}, quietLogger())
	r, err := NewReasoner(model, store, ReasonerConfig{}, quietLogger())
	require.NoError(t, err)

	res := r.Reason(context.Background(), "text", nil)

	assert.False(t, res.Undetermined)
	assert.NotContains(t, model.prompts[0], "Reference guidelines")
	assert.NotContains(t, model.prompts[0], "Fast check results")
}
