package callqueue

import (
	"context"
	"time"

	"callcenter-routing/internal/telephony"
)

// Repository is the persistence contract for call queue items.
//
// Tenancy invariant: tenant_id is required and enforced in all queries.
// Uniqueness invariant: (provider_type, external_call_id) identifies at most
// one item; Insert must reject duplicates with ErrDuplicateCall.
type Repository interface {
	Insert(ctx context.Context, item CallQueueItem) error
	Get(ctx context.Context, tenantID, id string) (CallQueueItem, error)
	GetByExternal(ctx context.Context, pt telephony.ProviderType, externalCallID string) (CallQueueItem, error)
	Update(ctx context.Context, item CallQueueItem) error

	// ClaimAnswer is the ownership compare-and-set: it succeeds only while
	// status is queued or ringing AND answered_by is empty. A failed match
	// returns errClaimFailed so the caller can reload and classify the loss.
	ClaimAnswer(ctx context.Context, tenantID, id, agentID string, at time.Time) (CallQueueItem, error)

	// ListLive returns all queued/ringing items for a tenant, unordered.
	ListLive(ctx context.Context, tenantID string) ([]CallQueueItem, error)

	// UpdatePositions rewrites queue positions for the given item ids in one
	// atomic step. Callers compute positions from a single snapshot.
	UpdatePositions(ctx context.Context, tenantID string, positions map[string]int, at time.Time) error
}
