package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"caseflow.app/automation/internal/model"
)

// EventMessage is the log entry appended once per committed case event.
type EventMessage struct {
	EventID   uuid.UUID
	CaseID    uuid.UUID
	TenantID  uuid.UUID
	EventType model.EventType
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	fields := map[string]any{
		"event_id":   msg.EventID.String(),
		"case_id":    msg.CaseID.String(),
		"tenant_id":  msg.TenantID.String(),
		"event_type": string(msg.EventType),
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue case event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued case event",
		"event_id", msg.EventID,
		"case_id", msg.CaseID,
		"event_type", msg.EventType)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
