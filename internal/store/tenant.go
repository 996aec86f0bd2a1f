package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"caseflow.app/automation/core/db"
)

type tenantStore struct {
	db *db.DB
}

func NewTenantStore(database *db.DB) TenantStore {
	return &tenantStore{db: database}
}

func (s *tenantStore) DirectDispatchEnabled(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	const q = `SELECT direct_dispatch_enabled FROM tenant_automation_settings WHERE tenant_id = $1`

	var enabled bool
	err := s.db.Pool().QueryRow(ctx, q, tenantID).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("loading tenant automation settings: %w", err)
	}
	return enabled, nil
}

func (s *tenantStore) GetAutomationActor(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT automation_actor_id FROM tenant_automation_settings WHERE tenant_id = $1`

	var actorID uuid.NullUUID
	err := s.db.Pool().QueryRow(ctx, q, tenantID).Scan(&actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("loading tenant automation actor: %w", err)
	}
	if !actorID.Valid {
		return uuid.Nil, ErrNotFound
	}
	return actorID.UUID, nil
}
