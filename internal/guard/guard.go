package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"caseflow.app/automation/common/logger"
)

// Outcome is the result of one guarded dispatch attempt.
type Outcome int

const (
	// OutcomeDispatched means this attempt started the workflow run.
	OutcomeDispatched Outcome = iota
	// OutcomeAlreadyDone means the pair was dispatched previously; nothing to do.
	OutcomeAlreadyDone
	// OutcomeContended means the attempt could not be resolved now and should
	// be retried via redelivery: the lock is held elsewhere or dispatch failed.
	OutcomeContended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeContended:
		return "contended"
	default:
		return "unknown"
	}
}

// Dispatch starts the workflow run for the guarded pair.
type Dispatch func(ctx context.Context) error

type Config struct {
	LockTTL time.Duration // bounds how long a crashed attempt blocks retries
	DoneTTL time.Duration // how long the dedup marker survives
}

// Guard serializes dispatch attempts per (event, workflow) pair across
// consumer instances and records successful dispatches so redelivery is a
// no-op. The done marker, once set, is never removed by this subsystem.
type Guard struct {
	client *redis.Client
	cfg    Config
}

func New(client *redis.Client, cfg Config) *Guard {
	return &Guard{client: client, cfg: cfg}
}

// Run attempts exactly-one dispatch for the pair. The lock is released on
// every path that acquired it, including dispatch failure.
func (g *Guard) Run(ctx context.Context, eventID, workflowID uuid.UUID, dispatch Dispatch) (Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "automation.guard",
	})

	doneKey := DoneKey(eventID, workflowID)
	lockKey := LockKey(eventID, workflowID)

	exists, err := g.client.Exists(ctx, doneKey).Result()
	if err != nil {
		return OutcomeContended, fmt.Errorf("checking done marker: %w", err)
	}
	if exists > 0 {
		slog.DebugContext(ctx, "pair already dispatched",
			"event_id", eventID,
			"workflow_id", workflowID)
		return OutcomeAlreadyDone, nil
	}

	acquired, err := g.client.SetNX(ctx, lockKey, "1", g.cfg.LockTTL).Result()
	if err != nil {
		return OutcomeContended, fmt.Errorf("acquiring dispatch lock: %w", err)
	}
	if !acquired {
		slog.DebugContext(ctx, "dispatch lock held by another consumer",
			"event_id", eventID,
			"workflow_id", workflowID)
		return OutcomeContended, nil
	}
	defer func() {
		if err := g.client.Del(ctx, lockKey).Err(); err != nil {
			slog.WarnContext(ctx, "failed to release dispatch lock, TTL will expire it",
				"error", err,
				"lock_key", lockKey)
		}
	}()

	if err := dispatch(ctx); err != nil {
		return OutcomeContended, fmt.Errorf("dispatching workflow %s for event %s: %w", workflowID, eventID, err)
	}

	// A failed marker write after a successful dispatch must not trigger a
	// retry; the ack prevents redelivery, so warn and report success.
	if err := g.client.Set(ctx, doneKey, time.Now().UTC().Format(time.RFC3339), g.cfg.DoneTTL).Err(); err != nil {
		slog.WarnContext(ctx, "failed to set done marker after dispatch",
			"error", err,
			"done_key", doneKey)
	}

	return OutcomeDispatched, nil
}

// DoneKey is the long-lived marker recording a successful dispatch for the
// pair. Derived deterministically so every consumer computes the same key.
func DoneKey(eventID, workflowID uuid.UUID) string {
	return fmt.Sprintf("automation:dispatch:done:%s:%s", eventID, workflowID)
}

// LockKey is the short-lived key serializing in-flight dispatch attempts.
func LockKey(eventID, workflowID uuid.UUID) string {
	return fmt.Sprintf("automation:dispatch:lock:%s:%s", eventID, workflowID)
}
