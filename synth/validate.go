package synth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// responseSchema describes the structural checks applied to one reasoning
// -service reply. Both engines share the same degradation contract: parse
// the reply as JSON, run the schema checks, and on any failure hand the
// specific reason back to the caller, which substitutes its deterministic
// fallback.
type responseSchema struct {
	required []string
	checks   []fieldCheck
}

type fieldCheck func(data map[string]any) string

// decodeResponse parses raw model output against a schema. It returns the
// parsed object and "" on success, or nil and the degradation reason.
func decodeResponse(raw string, schema responseSchema) (map[string]any, string) {
	var data map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &data); err != nil {
		return nil, "malformed response"
	}

	for _, field := range schema.required {
		if _, ok := data[field]; !ok {
			return nil, fmt.Sprintf("missing required field: %s", field)
		}
	}
	for _, check := range schema.checks {
		if reason := check(data); reason != "" {
			return nil, reason
		}
	}
	return data, ""
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the JSON response mode.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// numberField extracts data[key] as a float64 when it is JSON-numeric.
func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key].(float64)
	return v, ok
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func stringList(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
