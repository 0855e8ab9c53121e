package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUndecodable is returned when no decoding strategy produced a document
// that satisfies the schema.
var ErrUndecodable = errors.New("model reply could not be decoded")

// CompileSchema compiles a JSON-Schema given as a generic map. Stages compile
// their schema once at construction.
func CompileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Decode parses a model reply into out. It tries the reply as-is, then with
// markdown fences stripped, then the first balanced JSON object found in the
// text. The first candidate that validates against schema wins.
func Decode(raw string, schema *jsonschema.Schema, out any) error {
	var lastErr error
	for _, candidate := range candidates(raw) {
		if err := decodeStrict(candidate, schema, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("empty reply")
	}
	return fmt.Errorf("%w: %w", ErrUndecodable, lastErr)
}

func decodeStrict(doc string, schema *jsonschema.Schema, out any) error {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(v); err != nil {
			return fmt.Errorf("json does not match schema: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", out, err)
	}
	return nil
}

func candidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	out := []string{trimmed}
	if unfenced := StripFences(trimmed); unfenced != trimmed && unfenced != "" {
		out = append(out, unfenced)
	}
	if obj, ok := firstObject(trimmed); ok && obj != out[len(out)-1] {
		out = append(out, obj)
	}
	return out
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...) on the opening line.
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} block, honouring strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
