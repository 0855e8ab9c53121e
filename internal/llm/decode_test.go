package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verdictSchema = map[string]any{
	"type":     "object",
	"required": []any{"findings"},
	"properties": map[string]any{
		"findings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"phrase"},
				"properties": map[string]any{
					"phrase": map[string]any{"type": "string"},
				},
			},
		},
	},
}

type reply struct {
	Findings []struct {
		Phrase string `json:"phrase"`
	} `json:"findings"`
}

func TestDecode(t *testing.T) {
	schema, err := CompileSchema("reply", verdictSchema)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"strict", `{"findings":[{"phrase":"a"}]}`, "a"},
		{"fenced with tag", "```json\n{\"findings\":[{\"phrase\":\"b\"}]}\n```", "b"},
		{"fenced without tag", "```\n{\"findings\":[{\"phrase\":\"c\"}]}\n```", "c"},
		{"prose around object", "Here you go:\n{\"findings\":[{\"phrase\":\"d }\"}]}\nThanks.", "d }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out reply
			require.NoError(t, Decode(tt.raw, schema, &out))
			require.Len(t, out.Findings, 1)
			assert.Equal(t, tt.want, out.Findings[0].Phrase)
		})
	}
}

func TestDecode_Failures(t *testing.T) {
	schema, err := CompileSchema("reply", verdictSchema)
	require.NoError(t, err)

	for _, raw := range []string{"", "not json at all", `{"other":1}`, `{"findings":[{"phrase":3}]}`} {
		var out reply
		err := Decode(raw, schema, &out)
		assert.ErrorIs(t, err, ErrUndecodable, "raw %q", raw)
	}
}

func TestDecode_NilSchemaSkipsValidation(t *testing.T) {
	var out map[string]any
	require.NoError(t, Decode("```json\n{\"x\":1}\n```", nil, &out))
	assert.Equal(t, float64(1), out["x"])
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, StripFences("```{\"a\":1}```"))
}
