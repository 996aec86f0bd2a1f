package worker

import (
	"context"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/engine"
	"caseflow.app/automation/internal/model"
	"caseflow.app/automation/internal/store"
)

type mockTriggerStore struct {
	getEventFn           func(ctx context.Context, eventID, caseID, tenantID uuid.UUID) (*model.CaseEvent, error)
	getCaseFn            func(ctx context.Context, caseID, tenantID uuid.UUID) (*model.Case, error)
	listOnlineTriggersFn func(ctx context.Context, tenantID uuid.UUID, eventType model.EventType) ([]model.CaseTrigger, error)
	listWorkflowsFn      func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error)
}

func (m *mockTriggerStore) GetEvent(ctx context.Context, eventID, caseID, tenantID uuid.UUID) (*model.CaseEvent, error) {
	return m.getEventFn(ctx, eventID, caseID, tenantID)
}

func (m *mockTriggerStore) GetCase(ctx context.Context, caseID, tenantID uuid.UUID) (*model.Case, error) {
	return m.getCaseFn(ctx, caseID, tenantID)
}

func (m *mockTriggerStore) ListOnlineTriggers(ctx context.Context, tenantID uuid.UUID, eventType model.EventType) ([]model.CaseTrigger, error) {
	return m.listOnlineTriggersFn(ctx, tenantID, eventType)
}

func (m *mockTriggerStore) ListWorkflows(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
	return m.listWorkflowsFn(ctx, tenantID)
}

type mockTenantStore struct {
	directDispatchEnabledFn func(ctx context.Context, tenantID uuid.UUID) (bool, error)
	getAutomationActorFn    func(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error)
	actorCalls              int
}

func (m *mockTenantStore) DirectDispatchEnabled(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return m.directDispatchEnabledFn(ctx, tenantID)
}

func (m *mockTenantStore) GetAutomationActor(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	m.actorCalls++
	return m.getAutomationActorFn(ctx, tenantID)
}

type mockGateway struct {
	startFn             func(ctx context.Context, params engine.StartParams) (string, error)
	currentDefinitionFn func(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error)
	startCalls          []engine.StartParams
}

func (m *mockGateway) Start(ctx context.Context, params engine.StartParams) (string, error) {
	m.startCalls = append(m.startCalls, params)
	if m.startFn == nil {
		return "run-" + uuid.NewString()[:8], nil
	}
	return m.startFn(ctx, params)
}

func (m *mockGateway) CurrentDefinition(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error) {
	if m.currentDefinitionFn == nil {
		return model.ExecutionPlan(`{"nodes":[]}`), nil
	}
	return m.currentDefinitionFn(ctx, workflowID)
}

var _ store.TriggerStore = (*mockTriggerStore)(nil)
var _ store.TenantStore = (*mockTenantStore)(nil)
var _ engine.Gateway = (*mockGateway)(nil)
