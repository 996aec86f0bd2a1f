package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"caseflow.app/automation/core/db"
	"caseflow.app/automation/internal/model"
)

type triggerStore struct {
	db *db.DB
}

func NewTriggerStore(database *db.DB) TriggerStore {
	return &triggerStore{db: database}
}

func (s *triggerStore) GetEvent(ctx context.Context, eventID, caseID, tenantID uuid.UUID) (*model.CaseEvent, error) {
	const q = `
		SELECT id, type, data, case_id, tenant_id, user_id, created_at
		FROM case_events
		WHERE id = $1 AND case_id = $2 AND tenant_id = $3`

	var (
		ev      model.CaseEvent
		rawData []byte
		userID  uuid.NullUUID
	)
	err := s.db.Pool().QueryRow(ctx, q, eventID, caseID, tenantID).Scan(
		&ev.ID, &ev.Type, &rawData, &ev.CaseID, &ev.TenantID, &userID, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading case event: %w", err)
	}

	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &ev.Data); err != nil {
			return nil, fmt.Errorf("decoding event data: %w", err)
		}
	}
	if userID.Valid {
		id := userID.UUID
		ev.UserID = &id
	}

	return &ev, nil
}

func (s *triggerStore) GetCase(ctx context.Context, caseID, tenantID uuid.UUID) (*model.Case, error) {
	const q = `
		SELECT c.id, c.tenant_id,
		       COALESCE(ARRAY_AGG(ct.tag_id::text) FILTER (WHERE ct.tag_id IS NOT NULL), '{}')
		FROM cases c
		LEFT JOIN case_tags ct ON ct.case_id = c.id
		WHERE c.id = $1 AND c.tenant_id = $2
		GROUP BY c.id, c.tenant_id`

	var (
		cs      model.Case
		rawTags []string
	)
	err := s.db.Pool().QueryRow(ctx, q, caseID, tenantID).Scan(&cs.ID, &cs.TenantID, &rawTags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading case: %w", err)
	}

	tags, err := parseUUIDs(rawTags)
	if err != nil {
		return nil, fmt.Errorf("decoding case tags: %w", err)
	}
	cs.Tags = tags

	return &cs, nil
}

func (s *triggerStore) ListOnlineTriggers(ctx context.Context, tenantID uuid.UUID, eventType model.EventType) ([]model.CaseTrigger, error) {
	const q = `
		SELECT workflow_id, tenant_id, status, event_types, tag_filters::text[]
		FROM case_triggers
		WHERE tenant_id = $1 AND status = 'online' AND $2 = ANY(event_types)`

	rows, err := s.db.Pool().Query(ctx, q, tenantID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("listing online triggers: %w", err)
	}
	defer rows.Close()

	var triggers []model.CaseTrigger
	for rows.Next() {
		var (
			tr            model.CaseTrigger
			rawEventTypes []string
			rawTagFilters []string
		)
		if err := rows.Scan(&tr.WorkflowID, &tr.TenantID, &tr.Status, &rawEventTypes, &rawTagFilters); err != nil {
			return nil, fmt.Errorf("scanning trigger row: %w", err)
		}
		tr.EventTypes = make([]model.EventType, len(rawEventTypes))
		for i, et := range rawEventTypes {
			tr.EventTypes[i] = model.EventType(et)
		}
		tagFilters, err := parseUUIDs(rawTagFilters)
		if err != nil {
			return nil, fmt.Errorf("decoding trigger tag filters: %w", err)
		}
		tr.TagFilters = tagFilters
		triggers = append(triggers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trigger rows: %w", err)
	}

	return triggers, nil
}

func (s *triggerStore) ListWorkflows(ctx context.Context, tenantID uuid.UUID) ([]model.Workflow, error) {
	const q = `
		SELECT id, short_id, tenant_id, name, status, published, graph
		FROM workflows
		WHERE tenant_id = $1`

	rows, err := s.db.Pool().Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var workflows []model.Workflow
	for rows.Next() {
		var (
			wf       model.Workflow
			rawGraph []byte
		)
		if err := rows.Scan(&wf.ID, &wf.ShortID, &wf.TenantID, &wf.Name, &wf.Status, &wf.Published, &rawGraph); err != nil {
			return nil, fmt.Errorf("scanning workflow row: %w", err)
		}
		if len(rawGraph) > 0 {
			var graph model.Graph
			if err := json.Unmarshal(rawGraph, &graph); err != nil {
				return nil, fmt.Errorf("decoding workflow graph: %w", err)
			}
			wf.Graph = &graph
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflow rows: %w", err)
	}

	return workflows, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
