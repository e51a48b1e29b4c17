// Package schema translates caller-supplied JSON Schemas into the
// provider-native structured-output representations.
package schema

// GeminiSchema is the OpenAPI-subset schema shape Gemini's responseSchema
// field accepts.
type GeminiSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*GeminiSchema `json:"properties,omitempty"`
	Items       *GeminiSchema            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
}

// geminiTypes maps JSON Schema type tags to Gemini's type vocabulary.
var geminiTypes = map[string]string{
	"string":  "STRING",
	"number":  "NUMBER",
	"integer": "INTEGER",
	"boolean": "BOOLEAN",
	"array":   "ARRAY",
	"object":  "OBJECT",
}

// ToGeminiSchema recursively converts an OpenAI-style JSON Schema into
// Gemini's schema representation. Unknown or missing type tags map to
// STRING: upstream schemas are user-supplied and may be loosely typed, so
// a lossy fallback beats a hard failure.
func ToGeminiSchema(s map[string]any) *GeminiSchema {
	if s == nil {
		return &GeminiSchema{Type: "STRING"}
	}

	out := &GeminiSchema{Type: "STRING"}
	if t, ok := s["type"].(string); ok {
		if mapped, known := geminiTypes[t]; known {
			out.Type = mapped
		}
	}
	if desc, ok := s["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := s["properties"].(map[string]any); ok && len(props) > 0 {
		out.Properties = make(map[string]*GeminiSchema, len(props))
		for key, sub := range props {
			subSchema, _ := sub.(map[string]any)
			out.Properties[key] = ToGeminiSchema(subSchema)
		}
	}

	if items, ok := s["items"].(map[string]any); ok {
		out.Items = ToGeminiSchema(items)
	}

	out.Required = stringSlice(s["required"])
	return out
}

// EnforceClosedObjects returns a copy of the schema with
// additionalProperties:false on every object-typed subschema and with
// required filtered to keys actually present in properties. OpenAI's
// strict-mode validator rejects schemas that omit the flag. The function
// is idempotent.
func EnforceClosedObjects(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}

	out := make(map[string]any, len(s)+1)
	for key, val := range s {
		out[key] = val
	}

	var propKeys map[string]bool
	if props, ok := s["properties"].(map[string]any); ok {
		propKeys = make(map[string]bool, len(props))
		closed := make(map[string]any, len(props))
		for key, sub := range props {
			propKeys[key] = true
			if subSchema, ok := sub.(map[string]any); ok {
				closed[key] = EnforceClosedObjects(subSchema)
			} else {
				closed[key] = sub
			}
		}
		out["properties"] = closed
	}

	if t, _ := s["type"].(string); t == "object" {
		out["additionalProperties"] = false
		// Guard against a required entry naming a field that was dropped
		// or renamed upstream.
		if required := stringSlice(s["required"]); required != nil {
			kept := make([]string, 0, len(required))
			for _, name := range required {
				if propKeys[name] {
					kept = append(kept, name)
				}
			}
			out["required"] = kept
		}
	}

	if items, ok := s["items"].(map[string]any); ok {
		out["items"] = EnforceClosedObjects(items)
	}

	return out
}

// stringSlice coerces a decoded JSON array into []string, tolerating both
// []string and []any encodings. Returns nil for anything else.
func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
