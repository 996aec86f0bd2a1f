package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the semantic kind of a case lifecycle event.
type EventType string

const (
	EventTypeCaseCreated     EventType = "case_created"
	EventTypeCaseUpdated     EventType = "case_updated"
	EventTypeStatusChanged   EventType = "status_changed"
	EventTypeSeverityChanged EventType = "severity_changed"
	EventTypeCommentAdded    EventType = "comment_added"
	EventTypeCaseClosed      EventType = "case_closed"
)

// DataKeyWorkflowExecID is the event-data field that identifies the workflow
// run that authored the event. Absent for human-originated events.
const DataKeyWorkflowExecID = "wf_exec_id"

// CaseEvent is a committed case lifecycle event. It is append-only and owned
// by the case-event subsystem; automation only reads it.
type CaseEvent struct {
	ID        uuid.UUID
	Type      EventType
	Data      map[string]any // shape depends on Type
	CaseID    uuid.UUID
	TenantID  uuid.UUID
	UserID    *uuid.UUID
	CreatedAt time.Time
}

// WorkflowExecID returns the workflow run identifier embedded in the event
// data, if the event was produced by a workflow run.
func (e *CaseEvent) WorkflowExecID() (string, bool) {
	if e.Data == nil {
		return "", false
	}
	raw, ok := e.Data[DataKeyWorkflowExecID]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
