package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// TriggerStore is the tenant-scoped query layer the consumer and direct
// dispatch paths read from.
type TriggerStore interface {
	// GetEvent loads a case event by id, scoped to its case and tenant.
	GetEvent(ctx context.Context, eventID, caseID, tenantID uuid.UUID) (*model.CaseEvent, error)
	// GetCase loads a case with its tag references.
	GetCase(ctx context.Context, caseID, tenantID uuid.UUID) (*model.Case, error)
	// ListOnlineTriggers returns the online coarse trigger rows subscribed to
	// the given event type.
	ListOnlineTriggers(ctx context.Context, tenantID uuid.UUID, eventType model.EventType) ([]model.CaseTrigger, error)
	// ListWorkflows returns all tenant workflows regardless of status.
	ListWorkflows(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error)
}

// TenantStore resolves per-tenant automation settings.
type TenantStore interface {
	// DirectDispatchEnabled reports the tenant's direct-dispatch feature
	// toggle. A tenant with no settings row has the feature off.
	DirectDispatchEnabled(ctx context.Context, tenantID uuid.UUID) (bool, error)
	// GetAutomationActor returns the service identity workflow runs act as.
	GetAutomationActor(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error)
}
