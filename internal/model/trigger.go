package model

import "github.com/google/uuid"

type TriggerStatus string

const (
	TriggerStatusOnline  TriggerStatus = "online"
	TriggerStatusOffline TriggerStatus = "offline"
)

// CaseTrigger is a coarse, persisted trigger subscription: one row per
// workflow with a trigger configured. An online trigger always has a
// non-empty EventTypes set.
type CaseTrigger struct {
	WorkflowID uuid.UUID
	TenantID   uuid.UUID
	Status     TriggerStatus
	EventTypes []EventType
	TagFilters []uuid.UUID // empty means "any tags"
}

// ListensFor reports whether the trigger subscribes to the given event type.
func (t *CaseTrigger) ListensFor(et EventType) bool {
	for _, candidate := range t.EventTypes {
		if candidate == et {
			return true
		}
	}
	return false
}
