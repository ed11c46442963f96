package callqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// QueueManager maintains queue positions for not-yet-answered calls within a
// tenant. All mutations for one tenant are funneled through that tenant's
// lock (single writer), so renumbering always runs against a consistent
// snapshot of the live queue.
type QueueManager struct {
	repo  Repository
	locks sync.Map // tenantID -> *sync.Mutex
	clock func() time.Time
}

func NewQueueManager(repo Repository) *QueueManager {
	return &QueueManager{repo: repo, clock: time.Now}
}

// WithTenant runs fn while holding the tenant's queue lock.
func (m *QueueManager) WithTenant(tenantID string, fn func() error) error {
	muAny, _ := m.locks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// NextPosition returns currentMax(tenant)+1 for queue admission.
// Caller must hold the tenant lock.
func (m *QueueManager) NextPosition(ctx context.Context, tenantID string) (int, error) {
	live, err := m.repo.ListLive(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, item := range live {
		if item.QueuePosition != nil && *item.QueuePosition > max {
			max = *item.QueuePosition
		}
	}
	return max + 1, nil
}

// Renumber restores contiguous 1..K positions over the tenant's live queue,
// ordered by the queue policy. Only changed rows are written, in one atomic
// repository step. Caller must hold the tenant lock.
func (m *QueueManager) Renumber(ctx context.Context, tenantID string) error {
	live, err := m.repo.ListLive(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return nil
	}

	sort.Slice(live, func(i, j int) bool { return OrderBefore(live[i], live[j]) })

	changed := make(map[string]int)
	for i, item := range live {
		want := i + 1
		if item.QueuePosition == nil || *item.QueuePosition != want {
			changed[item.ID] = want
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return m.repo.UpdatePositions(ctx, tenantID, changed, m.clock().UTC())
}

// OrderBefore is the queue ordering policy: priority rank descending, then
// CreatedAt ascending (FIFO within a priority), then ID for determinism on
// exact timestamp ties.
func OrderBefore(a, b CallQueueItem) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// WaitSeconds computes the queue wait for an item leaving the live set.
func WaitSeconds(item CallQueueItem, now time.Time) int {
	w := int(now.Sub(item.CreatedAt) / time.Second)
	if w < 0 {
		return 0
	}
	return w
}
