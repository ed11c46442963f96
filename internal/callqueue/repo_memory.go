package callqueue

import (
	"context"
	"sync"
	"time"

	"callcenter-routing/internal/telephony"
)

// MemoryRepo is an in-memory Repository for tests and single-node setups.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[string]CallQueueItem // by id
	byExt map[extKey]string        // (provider, external id) -> id
}

type extKey struct {
	provider telephony.ProviderType
	external string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items: make(map[string]CallQueueItem),
		byExt: make(map[extKey]string),
	}
}

func (r *MemoryRepo) Insert(_ context.Context, item CallQueueItem) error {
	if item.ID == "" || item.TenantID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := extKey{provider: item.ProviderType, external: item.ExternalCallID}
	if item.ExternalCallID != "" {
		if _, exists := r.byExt[k]; exists {
			return ErrDuplicateCall
		}
	}
	if _, exists := r.items[item.ID]; exists {
		return ErrDuplicateCall
	}
	r.items[item.ID] = cloneItem(item)
	if item.ExternalCallID != "" {
		r.byExt[k] = item.ID
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, tenantID, id string) (CallQueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok || item.TenantID != tenantID {
		return CallQueueItem{}, ErrNotFound
	}
	return cloneItem(item), nil
}

func (r *MemoryRepo) GetByExternal(_ context.Context, pt telephony.ProviderType, externalCallID string) (CallQueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExt[extKey{provider: pt, external: externalCallID}]
	if !ok {
		return CallQueueItem{}, ErrNotFound
	}
	return cloneItem(r.items[id]), nil
}

func (r *MemoryRepo) Update(_ context.Context, item CallQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[item.ID]
	if !ok || existing.TenantID != item.TenantID {
		return ErrNotFound
	}
	r.items[item.ID] = cloneItem(item)
	return nil
}

func (r *MemoryRepo) ClaimAnswer(_ context.Context, tenantID, id, agentID string, at time.Time) (CallQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.TenantID != tenantID {
		return CallQueueItem{}, ErrNotFound
	}
	if !item.Status.Live() || item.AnsweredBy != "" {
		return CallQueueItem{}, errClaimFailed
	}
	item.Status = StatusAnswered
	item.AnsweredBy = agentID
	answeredAt := at
	item.AnsweredAt = &answeredAt
	item.UpdatedAt = at
	r.items[id] = item
	return cloneItem(item), nil
}

func (r *MemoryRepo) ListLive(_ context.Context, tenantID string) ([]CallQueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CallQueueItem
	for _, item := range r.items {
		if item.TenantID == tenantID && item.Status.Live() {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdatePositions(_ context.Context, tenantID string, positions map[string]int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range positions {
		item, ok := r.items[id]
		if !ok || item.TenantID != tenantID {
			return ErrNotFound
		}
		p := pos
		item.QueuePosition = &p
		item.UpdatedAt = at
		r.items[id] = item
	}
	return nil
}

// cloneItem deep-copies pointer fields so callers cannot mutate stored rows.
func cloneItem(item CallQueueItem) CallQueueItem {
	out := item
	if item.QueuePosition != nil {
		v := *item.QueuePosition
		out.QueuePosition = &v
	}
	if item.WaitTimeSeconds != nil {
		v := *item.WaitTimeSeconds
		out.WaitTimeSeconds = &v
	}
	if item.AnsweredAt != nil {
		v := *item.AnsweredAt
		out.AnsweredAt = &v
	}
	if item.TransferredAt != nil {
		v := *item.TransferredAt
		out.TransferredAt = &v
	}
	if item.CompletedAt != nil {
		v := *item.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
