package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/model"
)

// ErrNoDefinition is returned when a workflow has no resolvable execution
// plan, e.g. a never-published workflow on a published-only path.
var ErrNoDefinition = errors.New("no execution plan for workflow")

// TriggerType identifies what kind of trigger started a run.
const (
	TriggerTypeCaseEvent = "case_event"
)

// StartParams describes one workflow run start.
type StartParams struct {
	WorkflowID  uuid.UUID
	Plan        model.ExecutionPlan
	Payload     map[string]any
	TriggerType string
}

// Gateway starts workflow runs and resolves current definition content. The
// execution engine itself lives outside this subsystem.
type Gateway interface {
	// Start begins a workflow run and returns its run identifier.
	Start(ctx context.Context, params StartParams) (string, error)
	// CurrentDefinition resolves the workflow's current execution plan.
	// Returns ErrNoDefinition when the workflow has no resolvable content.
	CurrentDefinition(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error)
}
