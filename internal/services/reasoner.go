package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/lettercheck/internal/llm"
	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/reference"
)

// GuidelineProvider supplies reference text for the reasoning prompt.
type GuidelineProvider interface {
	Load(ctx context.Context, name string) (string, error)
	LoadAll(ctx context.Context) ([]reference.Document, error)
}

// ReasonerConfig holds the tunables of the deep reasoning stage.
type ReasonerConfig struct {
	// GuidelineNames selects reference documents by name. Empty means every
	// document the provider lists.
	GuidelineNames []string
}

// Reasoner produces the legal judgment, the letter classification and the
// suggested rewrites. On any failure it returns the conservative default
// marked Undetermined.
type Reasoner struct {
	model      llm.Generator
	guidelines GuidelineProvider
	config     ReasonerConfig
	schema     *jsonschema.Schema
	logger     *slog.Logger
}

var reasoningReplySchema = map[string]any{
	"type":     "object",
	"required": []any{"verdict", "issues"},
	"properties": map[string]any{
		"verdict": map[string]any{
			"type":     "object",
			"required": []any{"isRegulatedLetter"},
			"properties": map[string]any{
				"isRegulatedLetter": map[string]any{"type": "boolean"},
				"confidence":        map[string]any{"type": "string"},
				"reason":            map[string]any{"type": "string"},
				"documentType":      map[string]any{"type": "string"},
				"matchedPatterns":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"issues": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"description"},
				"properties": map[string]any{
					"category":       map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"quotedLocation": map[string]any{"type": "string"},
					"suggestedFix":   map[string]any{"type": "string"},
					"severity":       map[string]any{"type": "string"},
				},
			},
		},
		"rewrites": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"original", "suggested"},
				"properties": map[string]any{
					"original":  map[string]any{"type": "string"},
					"suggested": map[string]any{"type": "string"},
					"reason":    map[string]any{"type": "string"},
				},
			},
		},
		"explanation": map[string]any{"type": "string"},
		"summary":     map[string]any{"type": "string"},
	},
}

const reasoningReplyShape = `{
  "verdict": {
    "isRegulatedLetter": boolean,
    "confidence": "high" | "medium" | "low",
    "reason": "why the document is or is not a regulated letter",
    "documentType": "e.g. invoice, advertisement leaflet, personal letter",
    "matchedPatterns": ["criteria from the classification rules that applied"]
  },
  "issues": [
    {
      "category": "legal area",
      "description": "what is wrong",
      "quotedLocation": "verbatim quote of the problem text",
      "suggestedFix": "how to fix it",
      "severity": "high" | "medium" | "low"
    }
  ],
  "rewrites": [
    {"original": "verbatim text", "suggested": "replacement", "reason": "why"}
  ],
  "explanation": "plain-language explanation for a post office clerk",
  "summary": "one-sentence summary, at most 100 characters"
}`

func NewReasoner(model llm.Generator, guidelines GuidelineProvider, config ReasonerConfig, logger *slog.Logger) (*Reasoner, error) {
	if model == nil {
		return nil, fmt.Errorf("reasoner needs a model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := llm.CompileSchema("reasoning", reasoningReplySchema)
	if err != nil {
		return nil, err
	}
	return &Reasoner{model: model, guidelines: guidelines, config: config, schema: schema, logger: logger}, nil
}

// DefaultReasoning is the result used when the stage cannot complete.
func DefaultReasoning() models.ReasoningResult {
	return models.ReasoningResult{
		Verdict: models.ClassificationVerdict{
			IsRegulatedLetter: false,
			Confidence:        models.ConfidenceLow,
			MatchedPatterns:   []string{},
		},
		Issues:       []models.LegalIssue{},
		Rewrites:     []models.Rewrite{},
		Summary:      "no issues found",
		Undetermined: true,
	}
}

type reasoningReply struct {
	Verdict struct {
		IsRegulatedLetter bool     `json:"isRegulatedLetter"`
		Confidence        string   `json:"confidence"`
		Reason            string   `json:"reason"`
		DocumentType      string   `json:"documentType"`
		MatchedPatterns   []string `json:"matchedPatterns"`
	} `json:"verdict"`
	Issues []struct {
		Category       string `json:"category"`
		Description    string `json:"description"`
		QuotedLocation string `json:"quotedLocation"`
		SuggestedFix   string `json:"suggestedFix"`
		Severity       string `json:"severity"`
	} `json:"issues"`
	Rewrites []struct {
		Original  string `json:"original"`
		Suggested string `json:"suggested"`
		Reason    string `json:"reason"`
	} `json:"rewrites"`
	Explanation string `json:"explanation"`
	Summary     string `json:"summary"`
}

func (r *Reasoner) Reason(ctx context.Context, text string, prior []models.ScreeningFinding) models.ReasoningResult {
	prompt := r.buildPrompt(ctx, text, prior)

	raw, err := r.model.Generate(ctx, prompt)
	if err != nil {
		r.logger.Error("Reasoning call failed, using undetermined default", "error", err)
		return DefaultReasoning()
	}
	var reply reasoningReply
	if err := llm.Decode(raw, r.schema, &reply); err != nil {
		r.logger.Error("Reasoning reply unusable, using undetermined default", "error", err, "responseBody", raw)
		return DefaultReasoning()
	}

	res := models.ReasoningResult{
		Verdict: models.ClassificationVerdict{
			IsRegulatedLetter: reply.Verdict.IsRegulatedLetter,
			Confidence:        parseConfidence(reply.Verdict.Confidence),
			Reason:            reply.Verdict.Reason,
			DocumentType:      reply.Verdict.DocumentType,
			MatchedPatterns:   append([]string{}, reply.Verdict.MatchedPatterns...),
		},
		Issues:      make([]models.LegalIssue, 0, len(reply.Issues)),
		Rewrites:    make([]models.Rewrite, 0, len(reply.Rewrites)),
		Explanation: reply.Explanation,
		Summary:     reply.Summary,
	}
	for _, i := range reply.Issues {
		res.Issues = append(res.Issues, models.LegalIssue{
			Category:       i.Category,
			Description:    i.Description,
			QuotedLocation: strings.TrimSpace(i.QuotedLocation),
			SuggestedFix:   i.SuggestedFix,
			Severity:       models.ParseSeverity(strings.ToLower(strings.TrimSpace(i.Severity))),
		})
	}
	for _, w := range reply.Rewrites {
		if strings.TrimSpace(w.Original) == "" {
			continue
		}
		res.Rewrites = append(res.Rewrites, models.Rewrite{Original: w.Original, Suggested: w.Suggested, Reason: w.Reason})
	}
	if res.Summary == "" && len(res.Issues) == 0 {
		res.Summary = "no issues found"
	}
	r.logger.Info("Reasoning finished",
		"regulatedLetter", res.Verdict.IsRegulatedLetter, "confidence", res.Verdict.Confidence,
		"issues", len(res.Issues), "rewrites", len(res.Rewrites))
	return res
}

func parseConfidence(s string) models.Confidence {
	switch c := models.Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		return c
	}
	return models.ConfidenceLow
}

func (r *Reasoner) buildPrompt(ctx context.Context, text string, prior []models.ScreeningFinding) string {
	var b strings.Builder
	b.WriteString("Analyze the following document text from a legal perspective, classify it and propose fixes.\n")

	if guidance := r.loadGuidelines(ctx); guidance != "" {
		b.WriteString("\n## Reference guidelines\n")
		b.WriteString(guidance)
		b.WriteString("\n")
	}

	if len(prior) > 0 {
		b.WriteString("\n## Fast check results (pre-analysis)\n")
		pre, _ := json.MarshalIndent(prior, "", "  ")
		b.Write(pre)
		b.WriteString("\nConfirm, refine or dismiss these; do not repeat them without analysis.\n")
	}

	b.WriteString("\n## Document text\n")
	b.WriteString(text)
	b.WriteString("\n\n## Output format (JSON)\n")
	b.WriteString(reasoningReplyShape)
	b.WriteString("\n\nReturn ONLY valid JSON.")
	return b.String()
}

// loadGuidelines never fails; missing guidance only narrows the prompt.
func (r *Reasoner) loadGuidelines(ctx context.Context) string {
	if r.guidelines == nil {
		return ""
	}
	var docs []reference.Document
	if len(r.config.GuidelineNames) == 0 {
		all, err := r.guidelines.LoadAll(ctx)
		if err != nil {
			r.logger.Warn("Could not list reference guidelines", "error", err)
			return ""
		}
		docs = all
	} else {
		for _, name := range r.config.GuidelineNames {
			text, err := r.guidelines.Load(ctx, name)
			if errors.Is(err, reference.ErrNotFound) {
				r.logger.Debug("Reference guideline missing", "name", name)
				continue
			}
			if err != nil {
				r.logger.Warn("Could not load reference guideline", "name", name, "error", err)
				continue
			}
			docs = append(docs, reference.Document{Name: name, Text: text})
		}
	}

	var b strings.Builder
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n", d.Name, d.Text)
	}
	return strings.TrimSpace(b.String())
}
