package callqueue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"callcenter-routing/internal/history"
	"callcenter-routing/internal/presence"
	"callcenter-routing/internal/telephony"

	"github.com/google/uuid"
)

// Broadcaster publishes a full snapshot of a mutated call. Implemented by
// notify.Hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, item CallQueueItem)
}

// ControlDispatcher sends provider control actions asynchronously.
// Implemented by telephony.Dispatcher.
type ControlDispatcher interface {
	Dispatch(tenantID, callID string, pt telephony.ProviderType, externalCallID string, action telephony.ControlAction)
}

// Auditor records ingested events and agent actions. Best-effort; failures
// never block call flow.
type Auditor interface {
	CallEvent(ctx context.Context, tenantID, callID string, provider telephony.ProviderType, event telephony.EventType, raw string)
	AgentAction(ctx context.Context, tenantID, callID, agentID, action string)
}

// CapAcquirer checks the per-tenant live-call admission cap. Nil disables it.
type CapAcquirer func(ctx context.Context, tenantID string) (bool, error)

// CapReleaser frees one live-call cap slot once a call reaches a terminal
// status. Nil disables it.
type CapReleaser func(ctx context.Context, tenantID string) error

// Archiver persists terminal calls into history. Implemented by
// history.Service.
type Archiver interface {
	Archive(ctx context.Context, rec history.Record) error
}

// ServiceConfig carries the call lifecycle timers.
type ServiceConfig struct {
	RingTimeout           time.Duration
	TransferAcceptTimeout time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	out := c
	if out.RingTimeout <= 0 {
		out.RingTimeout = 90 * time.Second
	}
	if out.TransferAcceptTimeout <= 0 {
		out.TransferAcceptTimeout = 30 * time.Second
	}
	return out
}

// Service owns the per-call lifecycle state machine.
//
// Concurrency model: every mutation for a tenant runs under that tenant's
// queue lock (single writer), so per-call mutations are serialized before
// publication. The answer compare-and-set additionally guards the only
// cross-process race on a single row.
type Service struct {
	repo     Repository
	queue    *QueueManager
	presence presence.Registry
	fanout   Broadcaster
	controls ControlDispatcher
	audit    Auditor
	archive  Archiver
	cap      CapAcquirer
	capFree  CapReleaser
	timers   *Timers
	cfg      ServiceConfig
	clock    func() time.Time
	log      *slog.Logger
}

// Deps bundles optional collaborators; nil fields are skipped.
type Deps struct {
	Presence   presence.Registry
	Fanout     Broadcaster
	Controls   ControlDispatcher
	Audit      Auditor
	Archive    Archiver
	Cap        CapAcquirer
	CapRelease CapReleaser
	Log        *slog.Logger
}

func NewService(repo Repository, cfg ServiceConfig, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		queue:    NewQueueManager(repo),
		presence: deps.Presence,
		fanout:   deps.Fanout,
		controls: deps.Controls,
		audit:    deps.Audit,
		archive:  deps.Archive,
		cap:      deps.Cap,
		capFree:  deps.CapRelease,
		timers:   NewTimers(),
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		log:      log,
	}
}

// Ingest applies one normalized provider event. Creation happens on the
// first incoming/ringing event for an external id; duplicate callbacks are
// idempotent and terminal statuses never regress.
func (s *Service) Ingest(ctx context.Context, tenantID, phoneNumberID string, pt telephony.ProviderType, ev telephony.NormalizedCallEvent) (CallQueueItem, error) {
	if tenantID == "" || ev.ExternalCallID == "" || !pt.Valid() {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		existing, err := s.repo.GetByExternal(ctx, pt, ev.ExternalCallID)
		if errors.Is(err, ErrNotFound) {
			out, err = s.admitNew(ctx, tenantID, phoneNumberID, pt, ev)
			return err
		}
		if err != nil {
			return err
		}
		if existing.TenantID != tenantID {
			// Cross-tenant attribution: drop without leaking existence.
			return ErrNotFound
		}
		out, err = s.applyProviderEvent(ctx, existing, ev)
		return err
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	if s.audit != nil {
		s.audit.CallEvent(ctx, tenantID, out.ID, pt, ev.EventType, ev.RawPayload)
	}
	return out, nil
}

func (s *Service) admitNew(ctx context.Context, tenantID, phoneNumberID string, pt telephony.ProviderType, ev telephony.NormalizedCallEvent) (CallQueueItem, error) {
	if ev.EventType != telephony.EventIncoming && ev.EventType != telephony.EventRinging {
		// Only incoming/ringing may create a call; anything else for an
		// unknown external id is dropped.
		return CallQueueItem{}, ErrNotFound
	}

	now := s.clock().UTC()
	item := CallQueueItem{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ProviderType:   pt,
		ExternalCallID: ev.ExternalCallID,
		PhoneNumberID:  phoneNumberID,
		Direction:      DirectionInbound,
		CallerPhone:    ev.CallerPhone,
		CallerName:     ev.CallerName,
		Priority:       PriorityMedium,
		CallType:       CallTypeGeneral,
		Status:         StatusQueued,
		ProviderStatus: ev.ProviderStatus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if s.cap != nil {
		ok, err := s.cap(ctx, tenantID)
		if err != nil {
			s.log.Warn("live-call cap check failed, admitting", "tenant", tenantID, "err", err)
		} else if !ok {
			item.Status = StatusFailed
			item.ProviderStatus = "rejected: tenant live-call cap"
			completedAt := item.CreatedAt
			item.CompletedAt = &completedAt
			if err := s.repo.Insert(ctx, item); err != nil {
				return CallQueueItem{}, err
			}
			s.log.Warn("call rejected by live-call cap", "tenant", tenantID, "call", item.ID)
			// The rejected call never held a cap slot; publish without release.
			s.publish(ctx, item)
			return item, nil
		}
	}

	pos, err := s.queue.NextPosition(ctx, tenantID)
	if err != nil {
		return CallQueueItem{}, err
	}
	item.QueuePosition = &pos
	if ev.EventType == telephony.EventRinging {
		item.Status = StatusRinging
	}

	if err := s.repo.Insert(ctx, item); err != nil {
		if errors.Is(err, ErrDuplicateCall) {
			// Another process created it between lookup and insert; treat the
			// duplicate callback as idempotent.
			return s.repo.GetByExternal(ctx, pt, ev.ExternalCallID)
		}
		return CallQueueItem{}, err
	}

	s.armRingTimer(item)
	if err := s.queue.Renumber(ctx, tenantID); err != nil {
		return CallQueueItem{}, err
	}
	item, err = s.repo.Get(ctx, tenantID, item.ID)
	if err != nil {
		return CallQueueItem{}, err
	}
	s.finalize(ctx, item)
	return item, nil
}

func (s *Service) applyProviderEvent(ctx context.Context, item CallQueueItem, ev telephony.NormalizedCallEvent) (CallQueueItem, error) {
	if item.Status.Terminal() {
		// Replayed payloads must not regress a terminal status.
		return item, nil
	}

	now := s.clock().UTC()
	wasLive := item.Status.Live()

	switch ev.EventType {
	case telephony.EventIncoming:
		// Duplicate admission callback.
		return item, nil

	case telephony.EventRinging:
		switch item.Status {
		case StatusQueued:
			item.Status = StatusRinging
		case StatusRinging:
			return item, nil
		default:
			return CallQueueItem{}, &InvalidTransitionError{From: item.Status, Event: string(ev.EventType)}
		}

	case telephony.EventAnswered:
		switch {
		case item.Status == StatusAnswered:
			// Provider confirmation of a UI answer.
			return item, nil
		case item.Status == StatusOnHold && item.AnsweredBy != "":
			item.Status = StatusAnswered
		case item.Status.Live() && item.Direction == DirectionOutbound && item.PlacedBy != "":
			// Callee picked up an outbound call; the placing agent owns it.
			item.Status = StatusAnswered
			item.AnsweredBy = item.PlacedBy
			answeredAt := now
			item.AnsweredAt = &answeredAt
			s.timers.Cancel(timerRing, item.ID)
		default:
			return CallQueueItem{}, &InvalidTransitionError{From: item.Status, Event: string(ev.EventType)}
		}

	case telephony.EventHold:
		switch item.Status {
		case StatusAnswered:
			item.Status = StatusOnHold
		case StatusOnHold:
			return item, nil
		default:
			return CallQueueItem{}, &InvalidTransitionError{From: item.Status, Event: string(ev.EventType)}
		}

	case telephony.EventTransfer:
		switch item.Status {
		case StatusAnswered, StatusOnHold:
			item.Status = StatusTransferred
			transferredAt := now
			item.TransferredAt = &transferredAt
		case StatusTransferred:
			return item, nil
		default:
			return CallQueueItem{}, &InvalidTransitionError{From: item.Status, Event: string(ev.EventType)}
		}

	case telephony.EventEnded:
		if item.Status.Live() {
			// Caller hung up before anyone answered.
			item.Status = StatusAbandoned
		} else {
			item.Status = StatusCompleted
		}
		completedAt := now
		item.CompletedAt = &completedAt
		if ev.DurationSeconds > 0 {
			item.DurationSeconds = ev.DurationSeconds
		} else if item.AnsweredAt != nil {
			item.DurationSeconds = int(now.Sub(*item.AnsweredAt) / time.Second)
		}

	case telephony.EventFailed:
		item.Status = StatusFailed
		completedAt := now
		item.CompletedAt = &completedAt

	case telephony.EventRecording:
		if ev.RecordingURL != "" {
			item.RecordingURL = ev.RecordingURL
		}

	default:
		return CallQueueItem{}, &InvalidTransitionError{From: item.Status, Event: string(ev.EventType)}
	}

	if ev.ProviderStatus != "" {
		item.ProviderStatus = ev.ProviderStatus
	}
	item.UpdatedAt = now

	if wasLive && !item.Status.Live() {
		s.leaveQueue(&item, now)
	}
	if item.Status.Terminal() {
		s.timers.CancelAll(item.ID)
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return CallQueueItem{}, err
	}
	if wasLive && !item.Status.Live() {
		if err := s.queue.Renumber(ctx, item.TenantID); err != nil {
			return CallQueueItem{}, err
		}
	}
	s.finalize(ctx, item)
	return item, nil
}

// Answer claims ownership of a queued/ringing call for an agent. Exactly one
// of N concurrent answers wins; losers receive AlreadyAnsweredError.
func (s *Service) Answer(ctx context.Context, tenantID, callID, agentID string) (CallQueueItem, error) {
	if tenantID == "" || callID == "" || agentID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		now := s.clock().UTC()
		item, err := s.repo.ClaimAnswer(ctx, tenantID, callID, agentID, now)
		if errors.Is(err, errClaimFailed) {
			current, getErr := s.repo.Get(ctx, tenantID, callID)
			if getErr != nil {
				return getErr
			}
			if current.AnsweredBy != "" && current.AnsweredBy != agentID {
				return &AlreadyAnsweredError{CallID: callID, AnsweredBy: current.AnsweredBy}
			}
			if current.Status == StatusOnHold && current.AnsweredBy == agentID {
				// The owning agent answering a call they put on hold
				// resumes it.
				current.Status = StatusAnswered
				current.UpdatedAt = now
				if err := s.repo.Update(ctx, current); err != nil {
					return err
				}
				s.dispatch(current, telephony.ActionResume)
				s.finalize(ctx, current)
				out = current
				return nil
			}
			return &InvalidTransitionError{From: current.Status, Event: "answer"}
		}
		if err != nil {
			return err
		}

		s.timers.Cancel(timerRing, item.ID)
		s.leaveQueue(&item, now)
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		if err := s.queue.Renumber(ctx, tenantID); err != nil {
			return err
		}

		s.dispatch(item, telephony.ActionAnswer)
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, agentID, "answer")
	return out, nil
}

// Hold parks an answered call. Only the owning agent may hold.
func (s *Service) Hold(ctx context.Context, tenantID, callID, agentID string) (CallQueueItem, error) {
	return s.ownedTransition(ctx, tenantID, callID, agentID, "hold",
		[]Status{StatusAnswered}, StatusOnHold, telephony.ActionHold)
}

// Resume returns an on-hold call to answered. Only the owning agent may resume.
func (s *Service) Resume(ctx context.Context, tenantID, callID, agentID string) (CallQueueItem, error) {
	return s.ownedTransition(ctx, tenantID, callID, agentID, "resume",
		[]Status{StatusOnHold}, StatusAnswered, telephony.ActionResume)
}

// End completes an answered or held call. Only the owning agent may end.
func (s *Service) End(ctx context.Context, tenantID, callID, agentID string) (CallQueueItem, error) {
	if tenantID == "" || callID == "" || agentID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if err := requireOwner(item, agentID, "end", StatusAnswered, StatusOnHold); err != nil {
			return err
		}

		now := s.clock().UTC()
		item.Status = StatusCompleted
		completedAt := now
		item.CompletedAt = &completedAt
		if item.AnsweredAt != nil {
			item.DurationSeconds = int(now.Sub(*item.AnsweredAt) / time.Second)
		}
		item.UpdatedAt = now
		s.timers.CancelAll(item.ID)

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		s.dispatch(item, telephony.ActionHangup)
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, agentID, "end")
	return out, nil
}

// MarkFailed force-transitions a non-terminal call to failed. Used when a
// provider control action exhausts its retry budget.
func (s *Service) MarkFailed(ctx context.Context, tenantID, callID, reason string) (CallQueueItem, error) {
	if tenantID == "" || callID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if item.Status.Terminal() {
			out = item
			return nil
		}

		now := s.clock().UTC()
		wasLive := item.Status.Live()
		item.Status = StatusFailed
		completedAt := now
		item.CompletedAt = &completedAt
		if reason != "" {
			item.ProviderStatus = reason
		}
		item.UpdatedAt = now
		s.timers.CancelAll(item.ID)
		if wasLive {
			s.leaveQueue(&item, now)
		}

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		if wasLive {
			if err := s.queue.Renumber(ctx, tenantID); err != nil {
				return err
			}
		}
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	return out, nil
}

// TrackOutbound registers a provider-accepted outbound call placed by an
// agent. It rings like any live call; the provider's answered event assigns
// ownership to the placing agent.
func (s *Service) TrackOutbound(ctx context.Context, tenantID, agentID, phoneNumberID string, pt telephony.ProviderType, externalCallID, to string) (CallQueueItem, error) {
	if tenantID == "" || agentID == "" || externalCallID == "" || !pt.Valid() {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		now := s.clock().UTC()
		pos, err := s.queue.NextPosition(ctx, tenantID)
		if err != nil {
			return err
		}
		item := CallQueueItem{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			ProviderType:   pt,
			ExternalCallID: externalCallID,
			PhoneNumberID:  phoneNumberID,
			Direction:      DirectionOutbound,
			PlacedBy:       agentID,
			CallerPhone:    to,
			Priority:       PriorityMedium,
			CallType:       CallTypeInternal,
			Status:         StatusRinging,
			QueuePosition:  &pos,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, item); err != nil {
			return err
		}
		s.armRingTimer(item)
		if err := s.queue.Renumber(ctx, tenantID); err != nil {
			return err
		}
		item, err = s.repo.Get(ctx, tenantID, item.ID)
		if err != nil {
			return err
		}
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, agentID, "place_outbound")
	return out, nil
}

// Get returns one call.
func (s *Service) Get(ctx context.Context, tenantID, callID string) (CallQueueItem, error) {
	return s.repo.Get(ctx, tenantID, callID)
}

// LiveQueue returns the tenant's queued/ringing calls ordered by position.
func (s *Service) LiveQueue(ctx context.Context, tenantID string) ([]CallQueueItem, error) {
	live, err := s.repo.ListLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(live, func(i, j int) bool {
		pi, pj := 0, 0
		if live[i].QueuePosition != nil {
			pi = *live[i].QueuePosition
		}
		if live[j].QueuePosition != nil {
			pj = *live[j].QueuePosition
		}
		return pi < pj
	})
	return live, nil
}

// ownedTransition handles the hold/resume shape: owner-only, single target
// status, paired provider control action.
func (s *Service) ownedTransition(ctx context.Context, tenantID, callID, agentID, action string, from []Status, to Status, control telephony.ControlAction) (CallQueueItem, error) {
	if tenantID == "" || callID == "" || agentID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if err := requireOwner(item, agentID, action, from...); err != nil {
			return err
		}

		item.Status = to
		item.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		s.dispatch(item, control)
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, agentID, action)
	return out, nil
}

// requireOwner enforces the ownership guard: actor must be answeredBy and
// the status must be one of the allowed sources. Violations are rejected
// without mutation.
func requireOwner(item CallQueueItem, agentID, event string, from ...Status) error {
	allowed := false
	for _, f := range from {
		if item.Status == f {
			allowed = true
			break
		}
	}
	if !allowed || item.AnsweredBy != agentID {
		return &InvalidTransitionError{From: item.Status, Event: event}
	}
	return nil
}

// leaveQueue clears the queue position and fixes the wait time as the call
// exits the live set.
func (s *Service) leaveQueue(item *CallQueueItem, now time.Time) {
	item.QueuePosition = nil
	w := WaitSeconds(*item, now)
	item.WaitTimeSeconds = &w
}

func (s *Service) armRingTimer(item CallQueueItem) {
	tenantID, callID := item.TenantID, item.ID
	s.timers.Schedule(timerRing, callID, s.cfg.RingTimeout, func() {
		s.ringTimeoutFired(tenantID, callID)
	})
}

// ringTimeoutFired marks a still-unanswered call missed. Firing after the
// call left queued/ringing is a no-op.
func (s *Service) ringTimeoutFired(tenantID, callID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if !item.Status.Live() || item.AnsweredBy != "" {
			return nil
		}

		now := s.clock().UTC()
		item.Status = StatusMissed
		completedAt := now
		item.CompletedAt = &completedAt
		item.UpdatedAt = now
		s.leaveQueue(&item, now)

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		if err := s.queue.Renumber(ctx, tenantID); err != nil {
			return err
		}
		s.finalize(ctx, item)
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Error("ring timeout handling failed", "tenant", tenantID, "call", callID, "err", err)
	}
}

func (s *Service) dispatch(item CallQueueItem, action telephony.ControlAction) {
	if s.controls == nil {
		return
	}
	s.controls.Dispatch(item.TenantID, item.ID, item.ProviderType, item.ExternalCallID, action)
}

// finalize publishes the snapshot, archives terminal calls and returns the
// call's live-call cap slot. Runs after the mutation is durably committed.
func (s *Service) finalize(ctx context.Context, item CallQueueItem) {
	s.publish(ctx, item)
	if item.Status.Terminal() && s.capFree != nil {
		if err := s.capFree(ctx, item.TenantID); err != nil {
			s.log.Warn("live-call cap release failed", "tenant", item.TenantID, "call", item.ID, "err", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, item CallQueueItem) {
	if s.fanout != nil {
		s.fanout.Broadcast(ctx, item)
	}
	if item.Status.Terminal() && s.archive != nil {
		if err := s.archive.Archive(ctx, historyRecord(item)); err != nil {
			s.log.Warn("history archive failed", "tenant", item.TenantID, "call", item.ID, "err", err)
		}
	}
}

func (s *Service) auditAction(ctx context.Context, item CallQueueItem, agentID, action string) {
	if s.audit != nil {
		s.audit.AgentAction(ctx, item.TenantID, item.ID, agentID, action)
	}
}

func historyRecord(item CallQueueItem) history.Record {
	rec := history.Record{
		CallID:          item.ID,
		TenantID:        item.TenantID,
		Provider:        string(item.ProviderType),
		ExternalCallID:  item.ExternalCallID,
		Direction:       string(item.Direction),
		CallerPhone:     item.CallerPhone,
		CallerName:      item.CallerName,
		CallType:        string(item.CallType),
		Priority:        string(item.Priority),
		Status:          string(item.Status),
		AnsweredBy:      item.AnsweredBy,
		DurationSeconds: item.DurationSeconds,
		RecordingURL:    item.RecordingURL,
		CreatedAt:       item.CreatedAt,
		CompletedAt:     item.CompletedAt,
	}
	if item.WaitTimeSeconds != nil {
		rec.WaitTimeSeconds = *item.WaitTimeSeconds
	}
	return rec
}
