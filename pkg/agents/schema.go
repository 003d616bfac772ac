package agents

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Response schemas give a cheap structural check between "it parsed" and
// "it maps onto the result type": a response can be valid JSON yet miss the
// fields the pipeline writes back to records.
var (
	topicBatchSchema = map[string]interface{}{
		"type":     "object",
		"required": []string{"topics"},
		"properties": map[string]interface{}{
			"topics": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"title"},
					"properties": map[string]interface{}{
						"title":     map[string]interface{}{"type": "string"},
						"hook":      map[string]interface{}{"type": "string"},
						"post_type": map[string]interface{}{"type": "string"},
						"summary":   map[string]interface{}{"type": "string"},
						"cta":       map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}

	generatedContentSchema = map[string]interface{}{
		"type":     "object",
		"required": []string{"title", "content"},
		"properties": map[string]interface{}{
			"title":   map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
	}

	improvementSchema = map[string]interface{}{
		"type":     "object",
		"required": []string{"improved_content"},
		"properties": map[string]interface{}{
			"improved_content":    map[string]interface{}{"type": "string"},
			"improvement_summary": map[string]interface{}{"type": "string"},
		},
	}

	imagePromptSchema = map[string]interface{}{
		"type":     "object",
		"required": []string{"cover_image_prompt"},
		"properties": map[string]interface{}{
			"cover_image_prompt": map[string]interface{}{"type": "string"},
		},
	}
)

// validateSchema checks jsonStr against the given schema document.
func validateSchema(schema map[string]interface{}, jsonStr string) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewStringLoader(jsonStr)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		return fmt.Errorf("response failed schema validation: %v", result.Errors())
	}

	return nil
}
