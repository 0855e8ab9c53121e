package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/lettercheck/internal/llm"
	"github.com/Lllllllleong/lettercheck/internal/models"
)

// EntityDetectorConfig holds the tunables of the personal-information stage.
type EntityDetectorConfig struct {
	ScoreThreshold float64
}

// EntityDetector finds personal information and redacts it with per-type
// placeholders. It never fails: on any error the text comes back unchanged.
type EntityDetector struct {
	model  llm.Generator
	config EntityDetectorConfig
	schema *jsonschema.Schema
	logger *slog.Logger
}

var entityReplySchema = map[string]any{
	"type":     "object",
	"required": []any{"entities"},
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"type", "text", "score"},
				"properties": map[string]any{
					"type":  map[string]any{"type": "string"},
					"text":  map[string]any{"type": "string"},
					"start": map[string]any{"type": "integer"},
					"end":   map[string]any{"type": "integer"},
					"score": map[string]any{"type": "number"},
				},
			},
		},
	},
}

// Labels some models use for the same concepts.
var entityAliases = map[string]models.EntityType{
	"LOCATION":      models.EntityAddress,
	"EMAIL_ADDRESS": models.EntityEmail,
	"PHONE":         models.EntityPhone,
	"ORG":           models.EntityOrganization,
	"DATE":          models.EntityDateTime,
	"IP":            models.EntityIPAddress,
}

func NewEntityDetector(model llm.Generator, config EntityDetectorConfig, logger *slog.Logger) (*EntityDetector, error) {
	if model == nil {
		return nil, fmt.Errorf("entity detector needs a model")
	}
	if config.ScoreThreshold <= 0 {
		config.ScoreThreshold = 0.7
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := llm.CompileSchema("entities", entityReplySchema)
	if err != nil {
		return nil, err
	}
	return &EntityDetector{model: model, config: config, schema: schema, logger: logger}, nil
}

type entityReply struct {
	Entities []struct {
		Type  string  `json:"type"`
		Text  string  `json:"text"`
		Start *int    `json:"start"`
		End   *int    `json:"end"`
		Score float64 `json:"score"`
	} `json:"entities"`
}

// Detect returns the redacted text and the accepted entities in text order.
func (d *EntityDetector) Detect(ctx context.Context, text string) models.RedactionResult {
	unchanged := models.RedactionResult{
		RedactedText: text,
		Entities:     []models.Entity{},
		CountsByType: map[models.EntityType]int{},
	}
	if strings.TrimSpace(text) == "" {
		return unchanged
	}

	raw, err := d.model.Generate(ctx, buildEntityPrompt(text))
	if err != nil {
		d.logger.Warn("Entity detection call failed, continuing with unredacted text", "error", err)
		return unchanged
	}
	var reply entityReply
	if err := llm.Decode(raw, d.schema, &reply); err != nil {
		d.logger.Warn("Entity detection reply unusable, continuing with unredacted text", "error", err, "responseBody", raw)
		return unchanged
	}

	candidates := make([]models.Entity, 0, len(reply.Entities))
	for _, e := range reply.Entities {
		typ, ok := entityType(e.Type)
		if !ok {
			d.logger.Debug("Dropping entity with unknown label", "label", e.Type)
			continue
		}
		if e.Score < d.config.ScoreThreshold || e.Text == "" {
			continue
		}
		start, end := -1, -1
		if e.Start != nil && e.End != nil {
			start, end = *e.Start, *e.End
		}
		candidates = append(candidates, models.Entity{Type: typ, Text: e.Text, Start: start, End: end, Score: e.Score})
	}

	accepted := anchorEntities([]rune(text), candidates)
	result := models.RedactionResult{
		RedactedText: redact(text, accepted),
		Entities:     accepted,
		CountsByType: map[models.EntityType]int{},
	}
	for _, e := range accepted {
		result.CountsByType[e.Type]++
	}
	d.logger.Info("Entity detection finished", "entities", len(accepted), "candidates", len(reply.Entities))
	return result
}

func entityType(label string) (models.EntityType, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, t := range models.EntityTypes {
		if string(t) == label {
			return t, true
		}
	}
	t, ok := entityAliases[label]
	return t, ok
}

// anchorEntities places each candidate on a rune range of text. Higher scores
// claim their range first; a candidate whose reported offsets do not slice to
// its text moves to the first unclaimed occurrence, and one that cannot be
// placed is dropped. The result is sorted by start.
func anchorEntities(text []rune, candidates []models.Entity) []models.Entity {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := len([]rune(a.Text)), len([]rune(b.Text)); la != lb {
			return la > lb
		}
		if a.Text != b.Text {
			return a.Text < b.Text
		}
		return a.Type < b.Type
	})

	var claimed []models.Entity
	free := func(start, end int) bool {
		for _, c := range claimed {
			if start < c.End && c.Start < end {
				return false
			}
		}
		return true
	}

	for _, c := range candidates {
		needle := []rune(c.Text)
		start, end := c.Start, c.End
		if !(start >= 0 && end <= len(text) && start < end && string(text[start:end]) == c.Text) {
			start, end = -1, -1
			for _, at := range occurrences(text, needle) {
				if free(at, at+len(needle)) {
					start, end = at, at+len(needle)
					break
				}
			}
			if start < 0 {
				continue
			}
		} else if !free(start, end) {
			continue
		}
		c.Start, c.End = start, end
		claimed = append(claimed, c)
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Start < claimed[j].Start })
	return claimed
}

func occurrences(text, needle []rune) []int {
	var out []int
	if len(needle) == 0 {
		return out
	}
	for i := 0; i+len(needle) <= len(text); i++ {
		if string(text[i:i+len(needle)]) == string(needle) {
			out = append(out, i)
		}
	}
	return out
}

// redact replaces entities right to left so earlier offsets stay valid.
// Entities must not overlap.
func redact(text string, entities []models.Entity) string {
	runes := []rune(text)
	ordered := append([]models.Entity(nil), entities...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })
	for _, e := range ordered {
		placeholder := []rune(e.Type.Placeholder())
		tail := append(placeholder, runes[e.End:]...)
		runes = append(runes[:e.Start], tail...)
	}
	return string(runes)
}

func buildEntityPrompt(text string) string {
	labels := make([]string, len(models.EntityTypes))
	for i, t := range models.EntityTypes {
		labels[i] = string(t)
	}
	var b strings.Builder
	b.WriteString("Find personal information in the text below.\n\n")
	b.WriteString("Allowed labels: " + strings.Join(labels, ", ") + ".\n")
	b.WriteString(`Rules:
- Return only entities you are confident about, with a score between 0 and 1.
- Do not label generic role nouns such as "customer", "recipient", "member", "お客様" or "会員様".
- "start" and "end" are character offsets into the text, end exclusive.
- "text" must be copied exactly from the text.

Return a JSON object: {"entities":[{"type":"PERSON","text":"...","start":0,"end":0,"score":0.0}]}

Text:
`)
	b.WriteString(text)
	return b.String()
}
