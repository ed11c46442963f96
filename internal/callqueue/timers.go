package callqueue

import (
	"sync"
	"time"
)

type timerKind string

const (
	timerRing     timerKind = "ring"
	timerTransfer timerKind = "transfer"
)

type timerKey struct {
	kind   timerKind
	callID string
}

// Timers tracks the wall-clock timers scoped to one call (ring timeout,
// transfer-acceptance timeout). Firing is just another event fed through the
// state machine; the current status guards against late fires.
type Timers struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer

	// after is injectable for tests; defaults to time.AfterFunc.
	after func(d time.Duration, f func()) *time.Timer
}

func NewTimers() *Timers {
	return &Timers{
		timers: make(map[timerKey]*time.Timer),
		after:  time.AfterFunc,
	}
}

// Schedule arms (or re-arms) one timer for a call.
func (t *Timers) Schedule(kind timerKind, callID string, d time.Duration, fire func()) {
	key := timerKey{kind: kind, callID: callID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[key]; ok {
		existing.Stop()
	}
	t.timers[key] = t.after(d, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fire()
	})
}

// Cancel stops one timer if armed. A fire already in flight is harmless;
// the state machine re-checks status.
func (t *Timers) Cancel(kind timerKind, callID string) {
	key := timerKey{kind: kind, callID: callID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// CancelAll stops every timer for a call. Used on terminal transitions.
func (t *Timers) CancelAll(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		if key.callID == callID {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}
