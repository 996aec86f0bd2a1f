package engine

import (
	"caseflow.app/automation/internal/model"
	"caseflow.app/automation/internal/trigger"
)

// CaseEventPayload builds the run input for a case-event dispatch: the case,
// the projected event, and the case's tags.
func CaseEventPayload(cs *model.Case, ev *model.CaseEvent) map[string]any {
	tags := make([]string, len(cs.Tags))
	for i, tag := range cs.Tags {
		tags[i] = tag.String()
	}
	return map[string]any{
		"case": map[string]any{
			"id":        cs.ID.String(),
			"tenant_id": cs.TenantID.String(),
		},
		"event": trigger.ProjectEvent(ev),
		"tags":  tags,
	}
}
