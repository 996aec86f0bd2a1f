package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caseflow.app/automation/common/logger"
	"caseflow.app/automation/internal/engine"
	"caseflow.app/automation/internal/model"
	"caseflow.app/automation/internal/store"
	"caseflow.app/automation/internal/trigger"
)

// DirectDispatchService is the synchronous, non-queued entry point for
// callers that already hold a case event in-process. It evaluates the
// tenant's workflows' embedded trigger configs against the event and
// dispatches immediately, without the log or the dedup guard: the caller
// invokes it exactly once per event, so redelivery cannot occur.
type DirectDispatchService interface {
	// Dispatch returns the run ids of every started workflow run, one per
	// matching trigger config. Individual non-matching or failed workflows
	// never fail the batch.
	Dispatch(ctx context.Context, cs *model.Case, ev *model.CaseEvent) ([]string, error)
}

type directDispatchService struct {
	stores  store.TriggerStore
	tenants store.TenantStore
	gateway engine.Gateway
	logger  *slog.Logger
}

func NewDirectDispatchService(stores store.TriggerStore, tenants store.TenantStore, gateway engine.Gateway, log *slog.Logger) DirectDispatchService {
	if log == nil {
		log = slog.Default()
	}
	return &directDispatchService{
		stores:  stores,
		tenants: tenants,
		gateway: gateway,
		logger:  log,
	}
}

func (s *directDispatchService) Dispatch(ctx context.Context, cs *model.Case, ev *model.CaseEvent) ([]string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "automation.direct_dispatch",
		TenantID:  logger.Ptr(cs.TenantID.String()),
		CaseID:    logger.Ptr(cs.ID.String()),
		EventID:   logger.Ptr(ev.ID.String()),
		EventType: logger.Ptr(string(ev.Type)),
	})

	enabled, err := s.tenants.DirectDispatchEnabled(ctx, cs.TenantID)
	if err != nil {
		return nil, fmt.Errorf("checking direct dispatch toggle: %w", err)
	}
	if !enabled {
		return nil, nil
	}

	// Offline workflows stay eligible: a workflow can carry valid trigger
	// configuration while its manual invocation surface is disabled.
	workflows, err := s.stores.ListWorkflows(ctx, cs.TenantID)
	if err != nil {
		return nil, fmt.Errorf("listing tenant workflows: %w", err)
	}

	var runIDs []string
	for i := range workflows {
		wf := &workflows[i]
		configs := trigger.ParseConfigs(ctx, wf.Graph)
		if len(configs) == 0 {
			continue
		}
		runIDs = append(runIDs, s.dispatchWorkflow(ctx, wf, configs, cs, ev)...)
	}

	return runIDs, nil
}

func (s *directDispatchService) dispatchWorkflow(ctx context.Context, wf *model.Workflow, configs []model.CaseWorkflowTriggerConfig, cs *model.Case, ev *model.CaseEvent) []string {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkflowID: logger.Ptr(wf.ID.String()),
	})

	var (
		runIDs []string
		plan   model.ExecutionPlan
	)
	for _, cfg := range configs {
		if !trigger.Matches(cfg, ev, wf) {
			continue
		}
		if cfg.ExecutionMode == model.ExecutionModePublished && !wf.Published {
			continue
		}

		if plan == nil {
			var err error
			plan, err = s.gateway.CurrentDefinition(ctx, wf.ID)
			if err != nil {
				if errors.Is(err, engine.ErrNoDefinition) {
					s.logger.WarnContext(ctx, "workflow has no execution plan, skipping")
				} else {
					s.logger.WarnContext(ctx, "failed to resolve execution plan, skipping workflow", "error", err)
				}
				return nil
			}
		}

		runID, err := s.gateway.Start(ctx, engine.StartParams{
			WorkflowID:  wf.ID,
			Plan:        plan,
			Payload:     engine.CaseEventPayload(cs, ev),
			TriggerType: engine.TriggerTypeCaseEvent,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "direct dispatch failed for trigger config",
				"error", err,
				"trigger_config_id", cfg.ID)
			continue
		}

		s.logger.InfoContext(ctx, "workflow run started via direct dispatch",
			"run_id", runID,
			"trigger_config_id", cfg.ID)
		runIDs = append(runIDs, runID)
	}

	return runIDs
}
