package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"caseflow.app/automation/common/logger"
	"caseflow.app/automation/internal/model"
)

type ConsumerConfig struct {
	Stream     string        // Redis stream name
	Group      string        // Redis consumer group name
	Consumer   string        // Redis consumer name
	BatchSize  int64         // Number of messages to read per batch
	Block      time.Duration // How long to block for new messages
	MinIdle    time.Duration // Pending idle time before an entry is claimable
	ClaimBatch int64         // Max pending entries to inspect per claim scan
}

// Message is one parsed case-event log entry.
type Message struct {
	ID        string
	EventID   uuid.UUID
	CaseID    uuid.UUID
	TenantID  uuid.UUID
	EventType model.EventType
	Raw       redis.XMessage
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.EnsureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

// EnsureGroup creates the consumer group at the stream tail if it does not
// exist. Positioning at "$" means a recreated group only sees new entries;
// entries older than the recreation point are not replayed.
func (c *RedisConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// IsMissingGroup reports whether a read failed because the group or stream
// no longer exists, e.g. after the log was administratively reset.
func IsMissingGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

// Read performs one blocking, size-bounded group read. Malformed entries are
// acknowledged and dropped here so they are never redelivered.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "automation.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// > = new messages not yet delivered to anyone. Unacked entries are
		// handled by the idle-claim scan.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	return c.parseBatch(ctx, streams), nil
}

// ClaimIdle scans the pending-entry list for entries idle longer than the
// configured threshold and force-claims them to this consumer. Claimed
// entries are parsed identically to freshly read ones.
func (c *RedisConsumer) ClaimIdle(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "automation.queue.consumer",
	})

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.ClaimBatch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}

	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	slog.InfoContext(ctx, "claiming stale pending entries",
		"count", len(ids),
		"min_idle", c.cfg.MinIdle)

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	return c.parseMessages(ctx, claimed), nil
}

func (c *RedisConsumer) Ack(ctx context.Context, id string) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

func (c *RedisConsumer) parseBatch(ctx context.Context, streams []redis.XStream) []Message {
	var messages []Message
	// XReadGroup supports multiple streams, but we only read one.
	for _, stream := range streams {
		messages = append(messages, c.parseMessages(ctx, stream.Messages)...)
	}
	return messages
}

func (c *RedisConsumer) parseMessages(ctx context.Context, raw []redis.XMessage) []Message {
	messages := make([]Message, 0, len(raw))
	for _, msg := range raw {
		parsed, err := ParseMessage(msg)
		if err != nil {
			slog.ErrorContext(ctx, "dropping malformed message",
				"error", err,
				"raw_message_id", msg.ID,
				"stream", c.cfg.Stream)
			_ = c.Ack(ctx, msg.ID)
			continue
		}
		messages = append(messages, parsed)
	}
	return messages
}

// ParseMessage validates the flat string fields of one log entry. All four
// fields are required and the ids must be UUIDs.
func ParseMessage(msg redis.XMessage) (Message, error) {
	eventID, err := parseUUID(msg.Values, "event_id")
	if err != nil {
		return Message{}, err
	}
	caseID, err := parseUUID(msg.Values, "case_id")
	if err != nil {
		return Message{}, err
	}
	tenantID, err := parseUUID(msg.Values, "tenant_id")
	if err != nil {
		return Message{}, err
	}

	rawType, ok := msg.Values["event_type"]
	if !ok {
		return Message{}, fmt.Errorf("missing event_type")
	}
	eventType := fmt.Sprint(rawType)
	if eventType == "" {
		return Message{}, fmt.Errorf("empty event_type")
	}

	return Message{
		ID:        msg.ID,
		EventID:   eventID,
		CaseID:    caseID,
		TenantID:  tenantID,
		EventType: model.EventType(eventType),
		Raw:       msg,
	}, nil
}

func parseUUID(values map[string]any, key string) (uuid.UUID, error) {
	raw, ok := values[key]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s", key)
	}
	id, err := uuid.Parse(fmt.Sprint(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return id, nil
}
