package history

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only archive for tests and single-node
// setups.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows []Record
	seen map[string]struct{} // call ids, for idempotent re-archive
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{seen: make(map[string]struct{})}
}

func (r *MemoryRepo) Append(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[rec.CallID]; ok {
		return nil
	}
	r.seen[rec.CallID] = struct{}{}
	r.rows = append(r.rows, rec)
	return nil
}

func (r *MemoryRepo) List(_ context.Context, tenantID string, tr TimeRange) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.rows {
		if rec.TenantID != tenantID {
			continue
		}
		if rec.CreatedAt.Before(tr.From) || rec.CreatedAt.After(tr.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// All returns every archived row. Test helper.
func (r *MemoryRepo) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.rows))
	copy(out, r.rows)
	return out
}
