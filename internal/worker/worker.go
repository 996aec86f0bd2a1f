package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caseflow.app/automation/common/logger"
	"caseflow.app/automation/common/metrics"
	"caseflow.app/automation/internal/engine"
	"caseflow.app/automation/internal/guard"
	"caseflow.app/automation/internal/model"
	"caseflow.app/automation/internal/queue"
	"caseflow.app/automation/internal/store"
	"caseflow.app/automation/internal/trigger"
)

// reclaimFloor bounds how often the pending-entry scan runs regardless of
// how low the idle threshold is configured.
const reclaimFloor = 30 * time.Second

type Config struct {
	// IdleThreshold is the pending idle time after which an entry becomes
	// claimable. The reclaim scan cadence is derived from it.
	IdleThreshold time.Duration
}

// Worker owns the consumer-group read loop: it turns log entries into
// guarded dispatch attempts and survives crashes and group loss. Many
// replicas may run against the same group.
type Worker struct {
	consumer *queue.RedisConsumer
	stores   store.TriggerStore
	guard    *guard.Guard
	gateway  engine.Gateway
	actors   *ActorCache
	metrics  metrics.Metrics

	reclaimEvery time.Duration
	lastReclaim  time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, stores store.TriggerStore, g *guard.Guard, gateway engine.Gateway, actors *ActorCache, m metrics.Metrics, cfg Config) *Worker {
	if m == nil {
		m = metrics.Noop{}
	}
	reclaimEvery := cfg.IdleThreshold / 2
	if reclaimEvery < reclaimFloor {
		reclaimEvery = reclaimFloor
	}
	return &Worker{
		consumer:     consumer,
		stores:       stores,
		guard:        g,
		gateway:      gateway,
		actors:       actors,
		metrics:      m,
		reclaimEvery: reclaimEvery,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// Run blocks until the context is cancelled, Stop is called, or a fatal read
// failure occurs. Cancellation is the expected ending signal and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "automation.worker",
	})

	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "consumer started", "reclaim_interval", w.reclaimEvery)
	w.lastReclaim = time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "consumer stopping on cancellation")
			return nil
		case <-w.stopCh:
			slog.InfoContext(ctx, "consumer stopping")
			return nil
		default:
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.InfoContext(ctx, "consumer stopping on cancellation")
				return nil
			}
			if queue.IsMissingGroup(err) {
				// The log was reset out-of-band. Recreate the group at the
				// tail and carry on; entries older than this point are gone.
				slog.WarnContext(ctx, "consumer group missing, recreating", "error", err)
				if gerr := w.consumer.EnsureGroup(ctx); gerr != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("recreating consumer group: %w", gerr)
				}
				continue
			}
			// Any other read failure is fatal; the supervisor restarts us.
			return err
		}

		if len(messages) == 0 {
			if time.Since(w.lastReclaim) >= w.reclaimEvery {
				w.reclaimIdle(ctx)
			}
			continue
		}

		w.processBatch(ctx, messages, false)
	}
}

// Stop signals the worker to stop gracefully and waits for the loop to exit.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

// reclaimIdle force-claims entries whose pending idle time exceeds the
// threshold and processes them identically to freshly read ones. Failures
// here are logged, not fatal; the next scan retries.
func (w *Worker) reclaimIdle(ctx context.Context) {
	w.lastReclaim = time.Now()

	claimed, err := w.consumer.ClaimIdle(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "idle reclaim failed", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.processBatch(ctx, claimed, true)
}

func (w *Worker) processBatch(ctx context.Context, messages []queue.Message, reclaimed bool) {
	for _, msg := range messages {
		w.metrics.IncConsumed()
		if reclaimed {
			w.metrics.IncReclaimed()
		}

		shouldAck := w.processMessageSafe(ctx, msg)
		if !shouldAck {
			continue
		}
		if err := w.consumer.Ack(ctx, msg.ID); err != nil {
			// The entry will be reclaimed and reprocessed; the done markers
			// make that safe.
			slog.WarnContext(ctx, "failed to ack message",
				"error", err,
				"message_id", msg.ID)
		}
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (shouldAck bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"event_id", msg.EventID)
			shouldAck = false
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage handles one log entry and reports whether it should be
// acknowledged. It returns true for drops (malformed references, stale ids,
// workflow-originated events, no listeners) and for fully resolved candidate
// sets; any contended or failed candidate withholds the ack so redelivery
// retries the whole message.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		EventID:   logger.Ptr(msg.EventID.String()),
		CaseID:    logger.Ptr(msg.CaseID.String()),
		TenantID:  logger.Ptr(msg.TenantID.String()),
		EventType: logger.Ptr(string(msg.EventType)),
	})

	ev, err := w.stores.GetEvent(ctx, msg.EventID, msg.CaseID, msg.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(ctx, "case event no longer exists, dropping")
			w.metrics.IncDropped("event_missing")
			return true
		}
		slog.ErrorContext(ctx, "failed to load case event", "error", err)
		return false
	}

	// Events authored by a workflow run never re-trigger automation on this
	// path; fine-grained self-trigger policy only applies to the direct path.
	if execID, ok := ev.WorkflowExecID(); ok {
		slog.DebugContext(ctx, "event originated from a workflow run, dropping",
			"wf_exec_id", execID)
		w.metrics.IncDropped("workflow_origin")
		return true
	}

	cs, err := w.stores.GetCase(ctx, msg.CaseID, msg.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(ctx, "case no longer exists, dropping")
			w.metrics.IncDropped("case_missing")
			return true
		}
		slog.ErrorContext(ctx, "failed to load case", "error", err)
		return false
	}

	triggers, err := w.stores.ListOnlineTriggers(ctx, msg.TenantID, ev.Type)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list online triggers", "error", err)
		return false
	}
	if len(triggers) == 0 {
		return true
	}

	allResolved := true
	for i := range triggers {
		tr := &triggers[i]
		if !trigger.CoarseMatch(tr, ev, cs) {
			continue
		}

		trCtx := logger.WithLogFields(ctx, logger.LogFields{
			WorkflowID: logger.Ptr(tr.WorkflowID.String()),
		})

		outcome, err := w.guard.Run(trCtx, ev.ID, tr.WorkflowID, func(ctx context.Context) error {
			return w.dispatch(ctx, tr.WorkflowID, ev, cs)
		})
		if err != nil {
			slog.ErrorContext(trCtx, "guarded dispatch failed, will retry", "error", err)
			w.metrics.IncDispatchFailed()
			allResolved = false
			continue
		}

		switch outcome {
		case guard.OutcomeDispatched:
			w.metrics.IncDispatched()
			slog.InfoContext(trCtx, "workflow dispatched for case event")
		case guard.OutcomeAlreadyDone:
			slog.DebugContext(trCtx, "pair already dispatched, skipping")
		case guard.OutcomeContended:
			slog.DebugContext(trCtx, "dispatch contended, will retry")
			allResolved = false
		}
	}

	return allResolved
}

// dispatch resolves the workflow's current execution plan and starts a run.
// A workflow with no resolvable plan is skipped rather than retried forever.
func (w *Worker) dispatch(ctx context.Context, workflowID uuid.UUID, ev *model.CaseEvent, cs *model.Case) error {
	plan, err := w.gateway.CurrentDefinition(ctx, workflowID)
	if err != nil {
		if errors.Is(err, engine.ErrNoDefinition) {
			slog.WarnContext(ctx, "workflow has no execution plan, skipping dispatch")
			return nil
		}
		return err
	}

	payload := engine.CaseEventPayload(cs, ev)
	if w.actors != nil {
		actorID, err := w.actors.Get(ctx, cs.TenantID)
		switch {
		case err == nil:
			payload["actor_id"] = actorID.String()
		case errors.Is(err, store.ErrNotFound):
			// Tenant has no automation actor configured; runs start unattributed.
		default:
			return err
		}
	}

	runID, err := w.gateway.Start(ctx, engine.StartParams{
		WorkflowID:  workflowID,
		Plan:        plan,
		Payload:     payload,
		TriggerType: engine.TriggerTypeCaseEvent,
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "workflow run started", "run_id", runID)
	return nil
}
