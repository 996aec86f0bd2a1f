package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	WorkflowStatusOnline  WorkflowStatus = "online"
	WorkflowStatusOffline WorkflowStatus = "offline"
)

// ExecutionMode gates whether an embedded trigger fires for published or
// draft workflow definitions.
type ExecutionMode string

const (
	ExecutionModePublished ExecutionMode = "published"
	ExecutionModeDraft     ExecutionMode = "draft"
)

// NodeKindTrigger marks the single graph node that carries a workflow's
// embedded trigger configs.
const NodeKindTrigger = "trigger"

// Workflow is a tenant workflow definition as automation sees it. ShortID is
// the compact identifier embedded in wf_exec_id provenance strings.
type Workflow struct {
	ID        uuid.UUID
	ShortID   string
	TenantID  uuid.UUID
	Name      string
	Status    WorkflowStatus
	Published bool
	Graph     *Graph
}

// Graph is the visual workflow graph blob.
type Graph struct {
	Nodes []Node `json:"nodes"`
}

// Node is a single node of the workflow graph. Data is node-kind specific.
type Node struct {
	ID   string         `json:"id"`
	Kind string         `json:"kind"`
	Data map[string]any `json:"data"`
}

// TriggerNode returns the graph's trigger node, if present.
func (g *Graph) TriggerNode() (*Node, bool) {
	if g == nil {
		return nil, false
	}
	for i := range g.Nodes {
		if g.Nodes[i].Kind == NodeKindTrigger {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// CaseWorkflowTriggerConfig is a fine-grained trigger definition embedded in
// a workflow's graph. It is an immutable snapshot read at matching time.
type CaseWorkflowTriggerConfig struct {
	ID               string
	Enabled          bool
	EventType        EventType
	FieldFilters     map[string]any // dot-path -> expected scalar or list
	AllowSelfTrigger bool
	ExecutionMode    ExecutionMode
}

// ExecutionPlan is resolved workflow definition content, opaque to automation.
type ExecutionPlan = json.RawMessage
