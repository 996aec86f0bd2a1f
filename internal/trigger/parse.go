package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"caseflow.app/automation/internal/model"
)

// dataKeyTriggers is the trigger-node data field holding the embedded list
// of trigger config objects.
const dataKeyTriggers = "triggers"

// ParseConfigs reads the embedded trigger configs out of a workflow graph.
// A missing trigger node, or a missing or wrongly-typed list, yields an empty
// result. Entries that are not objects or fail validation are skipped with a
// warning; one bad entry never hides the rest.
func ParseConfigs(ctx context.Context, graph *model.Graph) []model.CaseWorkflowTriggerConfig {
	node, ok := graph.TriggerNode()
	if !ok || node.Data == nil {
		return nil
	}

	raw, ok := node.Data[dataKeyTriggers].([]any)
	if !ok {
		return nil
	}

	configs := make([]model.CaseWorkflowTriggerConfig, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			slog.WarnContext(ctx, "skipping non-object trigger config entry",
				"node_id", node.ID,
				"index", i)
			continue
		}
		cfg, err := parseConfig(obj)
		if err != nil {
			slog.WarnContext(ctx, "skipping invalid trigger config entry",
				"error", err,
				"node_id", node.ID,
				"index", i)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs
}

// parseConfig translates one camel-cased config object into its canonical
// form. ExecutionMode defaults to published-only when absent.
func parseConfig(obj map[string]any) (model.CaseWorkflowTriggerConfig, error) {
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return model.CaseWorkflowTriggerConfig{}, fmt.Errorf("missing id")
	}

	eventType, ok := obj["eventType"].(string)
	if !ok || eventType == "" {
		return model.CaseWorkflowTriggerConfig{}, fmt.Errorf("missing eventType")
	}

	cfg := model.CaseWorkflowTriggerConfig{
		ID:            id,
		EventType:     model.EventType(eventType),
		ExecutionMode: model.ExecutionModePublished,
	}

	if enabled, ok := obj["enabled"].(bool); ok {
		cfg.Enabled = enabled
	}
	if allow, ok := obj["allowSelfTrigger"].(bool); ok {
		cfg.AllowSelfTrigger = allow
	}

	if rawFilters, present := obj["fieldFilters"]; present && rawFilters != nil {
		filters, ok := rawFilters.(map[string]any)
		if !ok {
			return model.CaseWorkflowTriggerConfig{}, fmt.Errorf("fieldFilters is not an object")
		}
		cfg.FieldFilters = filters
	}

	if rawMode, present := obj["executionMode"]; present && rawMode != nil {
		mode, ok := rawMode.(string)
		if !ok {
			return model.CaseWorkflowTriggerConfig{}, fmt.Errorf("executionMode is not a string")
		}
		switch model.ExecutionMode(mode) {
		case model.ExecutionModePublished, model.ExecutionModeDraft:
			cfg.ExecutionMode = model.ExecutionMode(mode)
		default:
			return model.CaseWorkflowTriggerConfig{}, fmt.Errorf("unknown executionMode %q", mode)
		}
	}

	return cfg, nil
}
