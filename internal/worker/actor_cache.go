package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/store"
)

// ActorCache memoizes each tenant's automation service identity for the
// lifetime of one consumer instance. It is constructed once per instance and
// passed by reference; there is no process-global state.
type ActorCache struct {
	tenants store.TenantStore

	mu       sync.RWMutex
	byTenant map[uuid.UUID]uuid.UUID
}

func NewActorCache(tenants store.TenantStore) *ActorCache {
	return &ActorCache{
		tenants:  tenants,
		byTenant: make(map[uuid.UUID]uuid.UUID),
	}
}

// Get returns the tenant's automation actor, resolving it on first use.
// Absence (store.ErrNotFound) is not cached: a tenant that configures an
// actor later is picked up on the next message.
func (c *ActorCache) Get(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	c.mu.RLock()
	actorID, ok := c.byTenant[tenantID]
	c.mu.RUnlock()
	if ok {
		return actorID, nil
	}

	actorID, err := c.tenants.GetAutomationActor(ctx, tenantID)
	if err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	c.byTenant[tenantID] = actorID
	c.mu.Unlock()

	return actorID, nil
}
