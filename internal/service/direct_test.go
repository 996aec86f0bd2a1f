package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/engine"
	"caseflow.app/automation/internal/model"
	"caseflow.app/automation/internal/service"
)

type stubTriggerStore struct {
	listWorkflowsFn func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error)
}

func (s *stubTriggerStore) GetEvent(ctx context.Context, eventID, caseID, tenantID uuid.UUID) (*model.CaseEvent, error) {
	return nil, errors.New("not used by direct dispatch")
}

func (s *stubTriggerStore) GetCase(ctx context.Context, caseID, tenantID uuid.UUID) (*model.Case, error) {
	return nil, errors.New("not used by direct dispatch")
}

func (s *stubTriggerStore) ListOnlineTriggers(ctx context.Context, tenantID uuid.UUID, eventType model.EventType) ([]model.CaseTrigger, error) {
	return nil, errors.New("not used by direct dispatch")
}

func (s *stubTriggerStore) ListWorkflows(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
	return s.listWorkflowsFn(ctx, tenantID)
}

type stubTenantStore struct {
	enabled    bool
	enabledErr error
}

func (s *stubTenantStore) DirectDispatchEnabled(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return s.enabled, s.enabledErr
}

func (s *stubTenantStore) GetAutomationActor(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not used by direct dispatch")
}

type stubGateway struct {
	startFn             func(ctx context.Context, params engine.StartParams) (string, error)
	currentDefinitionFn func(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error)
	startCalls          []engine.StartParams
	definitionCalls     int
}

func (s *stubGateway) Start(ctx context.Context, params engine.StartParams) (string, error) {
	s.startCalls = append(s.startCalls, params)
	if s.startFn == nil {
		return "run-1", nil
	}
	return s.startFn(ctx, params)
}

func (s *stubGateway) CurrentDefinition(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error) {
	s.definitionCalls++
	if s.currentDefinitionFn == nil {
		return model.ExecutionPlan(`{"nodes":[]}`), nil
	}
	return s.currentDefinitionFn(ctx, workflowID)
}

func triggerGraph(configs ...map[string]any) *model.Graph {
	raw := make([]any, len(configs))
	for i, c := range configs {
		raw[i] = c
	}
	return &model.Graph{Nodes: []model.Node{
		{ID: "n1", Kind: model.NodeKindTrigger, Data: map[string]any{"triggers": raw}},
	}}
}

var _ = Describe("DirectDispatchService", func() {
	var (
		ctx     context.Context
		stores  *stubTriggerStore
		tenants *stubTenantStore
		gateway *stubGateway
		svc     service.DirectDispatchService

		cs *model.Case
		ev *model.CaseEvent
	)

	newWorkflow := func(published bool, configs ...map[string]any) model.Workflow {
		return model.Workflow{
			ID:        uuid.New(),
			ShortID:   "wf-" + uuid.NewString()[:8],
			TenantID:  cs.TenantID,
			Status:    model.WorkflowStatusOnline,
			Published: published,
			Graph:     triggerGraph(configs...),
		}
	}

	enabledConfig := func() map[string]any {
		return map[string]any{
			"id":        "t1",
			"enabled":   true,
			"eventType": "case_updated",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		stores = &stubTriggerStore{}
		tenants = &stubTenantStore{enabled: true}
		gateway = &stubGateway{}
		svc = service.NewDirectDispatchService(stores, tenants, gateway, nil)

		tenantID := uuid.New()
		cs = &model.Case{ID: uuid.New(), TenantID: tenantID}
		ev = &model.CaseEvent{
			ID:        uuid.New(),
			Type:      model.EventTypeCaseUpdated,
			Data:      map[string]any{"field": "status"},
			CaseID:    cs.ID,
			TenantID:  tenantID,
			CreatedAt: time.Now().UTC(),
		}
	})

	Context("when the tenant toggle is off", func() {
		BeforeEach(func() {
			tenants.enabled = false
		})

		It("dispatches nothing and does not load workflows", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(BeEmpty())
			Expect(gateway.startCalls).To(BeEmpty())
		})
	})

	Context("when the toggle lookup fails", func() {
		BeforeEach(func() {
			tenants.enabledErr = errors.New("db down")
		})

		It("returns the error", func() {
			_, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with one matching workflow", func() {
		BeforeEach(func() {
			wf := newWorkflow(true, enabledConfig())
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("starts one run and returns its id", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(Equal([]string{"run-1"}))
			Expect(gateway.startCalls).To(HaveLen(1))
			Expect(gateway.startCalls[0].TriggerType).To(Equal(engine.TriggerTypeCaseEvent))
		})
	})

	Context("with two matching configs on one workflow", func() {
		BeforeEach(func() {
			second := enabledConfig()
			second["id"] = "t2"
			wf := newWorkflow(true, enabledConfig(), second)
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("starts one run per matching config but resolves the plan once", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(HaveLen(2))
			Expect(gateway.definitionCalls).To(Equal(1))
		})
	})

	Context("with non-matching configs", func() {
		BeforeEach(func() {
			disabled := enabledConfig()
			disabled["enabled"] = false
			wrongType := enabledConfig()
			wrongType["id"] = "t2"
			wrongType["eventType"] = "case_closed"
			filtered := enabledConfig()
			filtered["id"] = "t3"
			filtered["fieldFilters"] = map[string]any{"data.field": "severity"}

			wf := newWorkflow(true, disabled, wrongType, filtered)
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("starts nothing", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(BeEmpty())
			Expect(gateway.startCalls).To(BeEmpty())
		})
	})

	Context("with a published-only config on an unpublished workflow", func() {
		BeforeEach(func() {
			wf := newWorkflow(false, enabledConfig())
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("skips the workflow", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(BeEmpty())
		})
	})

	Context("with a draft-mode config on an unpublished workflow", func() {
		BeforeEach(func() {
			cfg := enabledConfig()
			cfg["executionMode"] = "draft"
			wf := newWorkflow(false, cfg)
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("dispatches against the draft definition", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(HaveLen(1))
		})
	})

	Context("with an offline workflow", func() {
		BeforeEach(func() {
			wf := newWorkflow(true, enabledConfig())
			wf.Status = model.WorkflowStatusOffline
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("remains eligible for trigger dispatch", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(HaveLen(1))
		})
	})

	Context("when a workflow has no execution plan", func() {
		BeforeEach(func() {
			planless := newWorkflow(true, enabledConfig())
			healthy := newWorkflow(true, enabledConfig())
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{planless, healthy}, nil
			}
			gateway.currentDefinitionFn = func(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error) {
				if workflowID == planless.ID {
					return nil, engine.ErrNoDefinition
				}
				return model.ExecutionPlan(`{"nodes":[]}`), nil
			}
		})

		It("skips it without failing the batch", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(HaveLen(1))
		})
	})

	Context("when one workflow's run fails to start", func() {
		BeforeEach(func() {
			failing := newWorkflow(true, enabledConfig())
			healthy := newWorkflow(true, enabledConfig())
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{failing, healthy}, nil
			}
			gateway.startFn = func(ctx context.Context, params engine.StartParams) (string, error) {
				if params.WorkflowID == failing.ID {
					return "", errors.New("engine rejected the run")
				}
				return "run-ok", nil
			}
		})

		It("still dispatches the others", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(Equal([]string{"run-ok"}))
		})
	})

	Context("with a self-originated event", func() {
		var wf model.Workflow

		BeforeEach(func() {
			wf = newWorkflow(true, enabledConfig())
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
			ev.Data["wf_exec_id"] = wf.ShortID + ":run-0"
		})

		It("blocks the feedback loop by default", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(BeEmpty())
		})

		It("dispatches when the config opts in", func() {
			cfg := enabledConfig()
			cfg["allowSelfTrigger"] = true
			wf.Graph = triggerGraph(cfg)

			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(HaveLen(1))
		})
	})

	Context("with a workflow carrying no trigger node", func() {
		BeforeEach(func() {
			wf := newWorkflow(true)
			wf.Graph = &model.Graph{Nodes: []model.Node{{ID: "n1", Kind: "action"}}}
			stores.listWorkflowsFn = func(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
				return []model.Workflow{wf}, nil
			}
		})

		It("is skipped", func() {
			runIDs, err := svc.Dispatch(ctx, cs, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(runIDs).To(BeEmpty())
		})
	})
})
