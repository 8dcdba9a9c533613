package openrouter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":         map[string]any{"type": "string"},
		"date":         map[string]any{"type": "string"},
		"amount":       map[string]any{"type": "number"},
		"currency":     map[string]any{"type": "string"},
		"vendor":       map[string]any{"type": "string"},
		"type":         map[string]any{"type": "string"},
		"reference_id": map[string]any{"type": "string"},
	},
	"required": []any{"text", "date", "amount", "currency", "type"},
}

var labelSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"label": map[string]any{
			"type": "string",
			"enum": []any{
				"Meals & Entertainment",
				"Transport",
				"SaaS",
				"Travel",
				"Office",
				"Other",
			},
		},
	},
	"required": []any{"label"},
}

func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
