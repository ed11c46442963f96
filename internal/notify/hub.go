package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"callcenter-routing/internal/callqueue"
)

// SnapshotFunc loads the current live queue for catch-up on subscribe.
type SnapshotFunc func(ctx context.Context, tenantID string) ([]callqueue.CallQueueItem, error)

// Hub delivers full CallQueueItem snapshots to in-process subscribers
// (agent console streams) and mirrors them onto external Publisher sinks.
//
// Per-call ordering holds because all mutations to one call are serialized
// through the state machine before Broadcast is invoked. Across different
// calls, delivery is at-least-once and unordered; subscribers replace by id.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[int]chan callqueue.CallQueueItem // tenant -> sub id -> stream
	nextID   int
	buffer   int
	snapshot SnapshotFunc
	sinks    []Publisher
	log      *slog.Logger
}

func NewHub(snapshot SnapshotFunc, log *slog.Logger, sinks ...Publisher) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:     make(map[string]map[int]chan callqueue.CallQueueItem),
		buffer:   64,
		snapshot: snapshot,
		sinks:    sinks,
		log:      log,
	}
}

// Broadcast pushes one snapshot to every subscriber of the tenant and to the
// external sinks. A slow subscriber's full buffer drops the oldest snapshot
// for that subscriber; the next snapshot for the call supersedes it.
func (h *Hub) Broadcast(ctx context.Context, item callqueue.CallQueueItem) {
	// Exclusive lock: a Subscribe in progress holds the lock across its
	// catch-up snapshot, so a broadcast lands either in the snapshot or in
	// the stream, never in neither.
	h.mu.Lock()
	for _, ch := range h.subs[item.TenantID] {
		select {
		case ch <- item:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- item:
			default:
			}
		}
	}
	h.mu.Unlock()

	if len(h.sinks) == 0 {
		return
	}
	payload, err := json.Marshal(item)
	if err != nil {
		h.log.Error("snapshot marshal failed", "call", item.ID, "err", err)
		return
	}
	topic := "calls/" + item.TenantID
	for _, sink := range h.sinks {
		if err := sink.Publish(ctx, topic, payload); err != nil {
			h.log.Warn("fan-out sink publish failed", "topic", topic, "err", err)
		}
	}
}

// Subscribe opens a snapshot stream for one tenant. The stream starts with a
// full current-queue snapshot (catch-up), then incremental snapshots. The
// returned cancel func must be called when the consumer disconnects.
func (h *Hub) Subscribe(ctx context.Context, tenantID string) (<-chan callqueue.CallQueueItem, func(), error) {
	h.mu.Lock()

	var catchup []callqueue.CallQueueItem
	if h.snapshot != nil {
		var err error
		catchup, err = h.snapshot(ctx, tenantID)
		if err != nil {
			h.mu.Unlock()
			return nil, nil, err
		}
	}

	size := h.buffer
	if len(catchup) >= size {
		size = len(catchup) + h.buffer
	}
	ch := make(chan callqueue.CallQueueItem, size)
	for _, item := range catchup {
		ch <- item
	}

	h.nextID++
	id := h.nextID
	t, ok := h.subs[tenantID]
	if !ok {
		t = make(map[int]chan callqueue.CallQueueItem)
		h.subs[tenantID] = t
	}
	t[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if t, ok := h.subs[tenantID]; ok {
			delete(t, id)
			if len(t) == 0 {
				delete(h.subs, tenantID)
			}
		}
	}
	return ch, cancel, nil
}

// Subscribers returns the subscriber count for a tenant. Test helper.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Close closes all external sinks.
func (h *Hub) Close() {
	for _, sink := range h.sinks {
		if err := sink.Close(); err != nil {
			h.log.Warn("fan-out sink close failed", "err", err)
		}
	}
}
