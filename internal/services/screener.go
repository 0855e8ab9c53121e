package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/lettercheck/internal/llm"
	"github.com/Lllllllleong/lettercheck/internal/models"
)

const screenerSystemPrompt = `You are a fast prohibited-phrase detector for printed correspondence. Analyze the text and list words or phrases that are legally risky.
Focus on:
- Discriminatory language
- Defamatory statements about identifiable people or companies
- Privacy violations
- Threats, intimidation or extortion
- Other legal risks such as unfounded superlatives or guaranteed results

Output JSON only with this structure:
{"findings":[{"phrase":"exact text from the document","offset_hint":0,"severity":"high|medium|low","reason":"short reason"}]}
"offset_hint" is the character position where the phrase starts. Copy "phrase" exactly from the text. Write "reason" in the language of the text.
If nothing is risky return {"findings":[]}.`

var screeningReplySchema = map[string]any{
	"type":     "object",
	"required": []any{"findings"},
	"properties": map[string]any{
		"findings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"phrase"},
				"properties": map[string]any{
					"phrase":      map[string]any{"type": "string"},
					"offset_hint": map[string]any{"type": "integer"},
					"severity":    map[string]any{"type": "string"},
					"reason":      map[string]any{"type": "string"},
				},
			},
		},
	},
}

// Screener is the cheap first pass that flags risky phrases. Failures
// produce an empty list.
type Screener struct {
	chat   llm.ChatCompleter
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewScreener(chat llm.ChatCompleter, logger *slog.Logger) (*Screener, error) {
	if chat == nil {
		return nil, fmt.Errorf("screener needs a chat client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := llm.CompileSchema("screening", screeningReplySchema)
	if err != nil {
		return nil, err
	}
	return &Screener{chat: chat, schema: schema, logger: logger}, nil
}

type screeningReply struct {
	Findings []struct {
		Phrase     string `json:"phrase"`
		OffsetHint int    `json:"offset_hint"`
		Severity   string `json:"severity"`
		Reason     string `json:"reason"`
	} `json:"findings"`
}

func (s *Screener) Screen(ctx context.Context, text string) []models.ScreeningFinding {
	findings := []models.ScreeningFinding{}
	if strings.TrimSpace(text) == "" {
		return findings
	}

	start := time.Now()
	raw, err := s.chat.Complete(ctx, screenerSystemPrompt, text)
	if err != nil {
		s.logger.Warn("Screening call failed, continuing without findings", "error", err)
		return findings
	}
	var reply screeningReply
	if err := llm.Decode(raw, s.schema, &reply); err != nil {
		s.logger.Warn("Screening reply unusable, continuing without findings", "error", err, "responseBody", raw)
		return findings
	}

	for _, f := range reply.Findings {
		phrase := strings.TrimSpace(f.Phrase)
		if phrase == "" {
			continue
		}
		findings = append(findings, models.ScreeningFinding{
			Phrase:     phrase,
			OffsetHint: max(f.OffsetHint, 0),
			Severity:   models.ParseSeverity(strings.ToLower(strings.TrimSpace(f.Severity))),
			Reason:     f.Reason,
		})
	}
	s.logger.Info("Screening finished", "findings", len(findings), "elapsed_ms", time.Since(start).Milliseconds())
	return findings
}
