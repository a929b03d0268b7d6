package services

import (
	"fmt"
	"strings"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var eventConfigSchemas = map[models.EventType]map[string]any{
	models.EventTypeFileArrival: {
		"type":     "object",
		"required": []any{"watchPath"},
		"properties": map[string]any{
			"watchPath":   map[string]any{"type": "string", "minLength": 1},
			"filePattern": map[string]any{"type": "string"},
		},
	},
	models.EventTypeSFTPArrival: {
		"type":     "object",
		"required": []any{"watchPath"},
		"properties": map[string]any{
			"watchPath":   map[string]any{"type": "string", "minLength": 1},
			"filePattern": map[string]any{"type": "string"},
		},
	},
	models.EventTypeWebhook: {
		"type": "object",
		"properties": map[string]any{
			"webhookUrl":    map[string]any{"type": "string"},
			"webhookSecret": map[string]any{"type": "string"},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	},
	models.EventTypeAPICall: {
		"type": "object",
		"properties": map[string]any{
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"custom": map[string]any{"type": "object"},
		},
	},
	models.EventTypeS3Event: {
		"type":     "object",
		"required": []any{"bucketName"},
		"properties": map[string]any{
			"bucketName": map[string]any{"type": "string", "minLength": 1},
			"prefix":     map[string]any{"type": "string"},
			"suffix":     map[string]any{"type": "string"},
		},
	},
	models.EventTypeDatabaseChange: {
		"type":     "object",
		"required": []any{"tableName", "changeType"},
		"properties": map[string]any{
			"tableName":  map[string]any{"type": "string", "minLength": 1},
			"changeType": map[string]any{"enum": []any{"insert", "update", "delete", "all"}},
		},
	},
}

// validateEventConfig checks an event trigger configuration against the
// JSON schema of its event type.
func validateEventConfig(eventType models.EventType, config map[string]any) error {
	schema, ok := eventConfigSchemas[eventType]
	if !ok {
		return NewValidationError("validateEventConfig", "INVALID_EVENT_TYPE",
			fmt.Sprintf("invalid eventType %q", eventType))
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate event config: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return NewValidationError("validateEventConfig", "INVALID_EVENT_CONFIG",
			"eventConfig is invalid: "+strings.Join(messages, "; "))
	}

	return nil
}
