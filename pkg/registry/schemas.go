package registry

import "github.com/flowzap/flowzap/pkg/models"

func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func stringProp() map[string]any  { return map[string]any{"type": "string"} }
func booleanProp() map[string]any { return map[string]any{"type": "boolean"} }

func integerProp(minimum int) map[string]any {
	return map[string]any{"type": "integer", "minimum": minimum}
}

func stringArrayProp() map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": 1,
		"items":    map[string]any{"type": "string"},
	}
}

func allDescriptors() []Descriptor {
	return []Descriptor{
		{
			Kind:        models.NodeKindTriggerKeyword,
			Category:    CategoryTrigger,
			Description: "Starts the flow when an inbound message matches a keyword",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"keywords"}, map[string]any{
				"keywords":   stringArrayProp(),
				"match_mode": map[string]any{"type": "string", "enum": []any{"exact", "contains"}},
				"fallback":   booleanProp(),
			}),
		},
		{
			Kind:        models.NodeKindTriggerButton,
			Category:    CategoryTrigger,
			Description: "Starts the flow when a button with a listed payload is pressed",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"payloads"}, map[string]any{
				"payloads": stringArrayProp(),
			}),
		},
		{
			Kind:        models.NodeKindTriggerWebhook,
			Category:    CategoryTrigger,
			Description: "Starts the flow on an external webhook call",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"path"}, map[string]any{
				"path": stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindTriggerSchedule,
			Category:    CategoryTrigger,
			Description: "Starts the flow on a cron schedule for each listed contact",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"cron", "contacts"}, map[string]any{
				"cron":     stringProp(),
				"contacts": stringArrayProp(),
			}),
		},
		{
			Kind:        models.NodeKindSendText,
			Category:    CategoryAction,
			Description: "Sends a free-form text message, gated by the 24h window",
			OutputPorts: []string{models.PortSent, models.PortError},
			ConfigSchema: objectSchema([]string{"text"}, map[string]any{
				"text": stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindSendMedia,
			Category:    CategoryAction,
			Description: "Sends a media message with optional caption, gated by the 24h window",
			OutputPorts: []string{models.PortSent, models.PortError},
			ConfigSchema: objectSchema([]string{"media_url", "media_type"}, map[string]any{
				"media_url":  stringProp(),
				"media_type": map[string]any{"type": "string", "enum": []any{"image", "video", "audio", "document"}},
				"caption":    stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindSendTemplate,
			Category:    CategoryAction,
			Description: "Sends a pre-approved template, gated by template health",
			OutputPorts: []string{models.PortSent, models.PortError},
			ConfigSchema: objectSchema([]string{"template_id"}, map[string]any{
				"template_id": stringProp(),
				"language":    stringProp(),
				"params":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
		},
		{
			Kind:        models.NodeKindAskQuestion,
			Category:    CategoryWait,
			Description: "Sends a question and suspends until the contact replies or times out",
			OutputPorts: []string{models.PortReply, models.PortTimeout},
			ConfigSchema: objectSchema([]string{"question", "variable"}, map[string]any{
				"question":        stringProp(),
				"variable":        stringProp(),
				"timeout_seconds": integerProp(0),
				"timeout_message": stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindCondition,
			Category:    CategoryControl,
			Description: "Branches true/false on a comparison after variable substitution",
			OutputPorts: []string{models.PortTrue, models.PortFalse},
			ConfigSchema: objectSchema([]string{"left", "operator"}, map[string]any{
				"left":     stringProp(),
				"operator": stringProp(),
				"right":    stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindSwitch,
			Category:    CategoryControl,
			Description: "Routes to the first matching case, else default, else unmatched",
			OutputPorts: []string{models.PortDefault, models.PortUnmatch},
			ConfigSchema: objectSchema([]string{"value", "cases"}, map[string]any{
				"value": stringProp(),
				"cases": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": objectSchema([]string{"match"}, map[string]any{
						"match": stringProp(),
					}),
				},
				"has_default": booleanProp(),
			}),
		},
		{
			Kind:        models.NodeKindSetVariable,
			Category:    CategoryData,
			Description: "Writes a value into the instance variable store",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"name"}, map[string]any{
				"name":  stringProp(),
				"value": stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindGetVariable,
			Category:    CategoryData,
			Description: "Copies a stored variable into another variable",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"name", "into"}, map[string]any{
				"name": stringProp(),
				"into": stringProp(),
			}),
		},
		{
			Kind:        models.NodeKindCallAPI,
			Category:    CategoryCall,
			Description: "Calls an external REST API and routes by status class",
			OutputPorts: []string{models.PortSuccess, models.PortError},
			ConfigSchema: objectSchema([]string{"url"}, map[string]any{
				"url":             stringProp(),
				"method":          map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}},
				"headers":         map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
				"body":            stringProp(),
				"timeout_seconds": integerProp(0),
			}),
		},
		{
			Kind:        models.NodeKindCallAI,
			Category:    CategoryCall,
			Description: "Calls the AI provider and stores the reply in a variable",
			OutputPorts: []string{models.PortSuccess, models.PortError},
			ConfigSchema: objectSchema([]string{"prompt", "variable"}, map[string]any{
				"prompt":        stringProp(),
				"variable":      stringProp(),
				"model":         stringProp(),
				"system_prompt": stringProp(),
				"max_tokens":    integerProp(0),
				"temperature":   map[string]any{"type": "number", "minimum": 0, "maximum": 2},
			}),
		},
		{
			Kind:        models.NodeKindDelay,
			Category:    CategoryWait,
			Description: "Suspends the flow for a fixed duration with optional jitter",
			OutputPorts: []string{models.PortMain},
			ConfigSchema: objectSchema([]string{"duration_seconds"}, map[string]any{
				"duration_seconds": integerProp(1),
				"jitter":           booleanProp(),
				"jitter_seconds":   integerProp(0),
			}),
		},
		{
			Kind:        models.NodeKindLoop,
			Category:    CategoryControl,
			Description: "Re-enters its body up to max_iterations times",
			OutputPorts: []string{models.PortBody, models.PortDone},
			ConfigSchema: objectSchema([]string{"max_iterations"}, map[string]any{
				"max_iterations": integerProp(1),
				"exit_when": objectSchema([]string{"left", "operator"}, map[string]any{
					"left":     stringProp(),
					"operator": stringProp(),
					"right":    stringProp(),
				}),
			}),
		},
		{
			Kind:        models.NodeKindRandom,
			Category:    CategoryControl,
			Description: "Routes to a weighted random branch",
			OutputPorts: nil,
			ConfigSchema: objectSchema([]string{"weights"}, map[string]any{
				"weights": map[string]any{
					"type":     "array",
					"minItems": 2,
					"items":    integerProp(0),
				},
			}),
		},
		{
			Kind:        models.NodeKindGoToFlow,
			Category:    CategoryControl,
			Description: "Completes this flow and hands the contact to another flow",
			OutputPorts: nil,
			ConfigSchema: objectSchema([]string{"flow_id"}, map[string]any{
				"flow_id":        stringProp(),
				"pass_variables": booleanProp(),
			}),
		},
		{
			Kind:         models.NodeKindEnd,
			Category:     CategoryControl,
			Description:  "Terminates the conversation",
			OutputPorts:  nil,
			ConfigSchema: objectSchema(nil, map[string]any{}),
		},
	}
}
