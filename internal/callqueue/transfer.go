package callqueue

import (
	"context"
	"errors"
	"time"

	"callcenter-routing/internal/telephony"
)

// Two-phase transfer protocol.
//
// Initiate: the owning agent picks an available target; the call moves to
// transferred and an acceptance timer starts. Resolve: the target accepts in
// time and takes ownership, or the timer expires and the call reverts to the
// queue with its priority escalated one level.

// Transfer initiates reassignment of an in-progress call to targetAgentID.
// Rejected synchronously with ErrNoAvailableAgent when the target is not an
// available agent (or is the caller themselves); call state is unchanged.
func (s *Service) Transfer(ctx context.Context, tenantID, callID, agentID, targetAgentID string) (CallQueueItem, error) {
	if tenantID == "" || callID == "" || agentID == "" || targetAgentID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}
	if targetAgentID == agentID {
		return CallQueueItem{}, ErrNoAvailableAgent
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if err := requireOwner(item, agentID, "transfer", StatusAnswered, StatusOnHold); err != nil {
			return err
		}

		// The presence registry is consulted, never mutated, here.
		if s.presence == nil {
			return ErrNoAvailableAgent
		}
		available, err := s.presence.IsAvailable(ctx, tenantID, targetAgentID)
		if err != nil {
			return err
		}
		if !available {
			return ErrNoAvailableAgent
		}

		now := s.clock().UTC()
		item.Status = StatusTransferred
		item.TransferredTo = targetAgentID
		transferredAt := now
		item.TransferredAt = &transferredAt
		item.UpdatedAt = now

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		s.armTransferTimer(item)
		s.dispatch(item, telephony.ActionTransfer)
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, agentID, "transfer")
	return out, nil
}

// AcceptTransfer resolves a pending transfer: ownership moves to the target
// and the call returns to answered.
func (s *Service) AcceptTransfer(ctx context.Context, tenantID, callID, targetAgentID string) (CallQueueItem, error) {
	if tenantID == "" || callID == "" || targetAgentID == "" {
		return CallQueueItem{}, ErrInvalidArgument
	}

	var out CallQueueItem
	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if item.Status != StatusTransferred || item.TransferredTo != targetAgentID {
			return &InvalidTransitionError{From: item.Status, Event: "accept_transfer"}
		}

		s.timers.Cancel(timerTransfer, item.ID)

		now := s.clock().UTC()
		item.AnsweredBy = item.TransferredTo
		item.Status = StatusAnswered
		answeredAt := now
		item.AnsweredAt = &answeredAt
		item.UpdatedAt = now

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		s.finalize(ctx, item)
		out = item
		return nil
	})
	if err != nil {
		return CallQueueItem{}, err
	}
	s.auditAction(ctx, out, targetAgentID, "accept_transfer")
	return out, nil
}

func (s *Service) armTransferTimer(item CallQueueItem) {
	tenantID, callID := item.TenantID, item.ID
	s.timers.Schedule(timerTransfer, callID, s.cfg.TransferAcceptTimeout, func() {
		s.transferTimeoutFired(tenantID, callID)
	})
}

// transferTimeoutFired reverts an unaccepted transfer to the queue with its
// priority escalated one level (urgent stays urgent). Owners are cleared and
// the call re-enters queue admission. Firing after the call left the
// transferred state is a no-op.
func (s *Service) transferTimeoutFired(tenantID, callID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.queue.WithTenant(tenantID, func() error {
		item, err := s.repo.Get(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if item.Status != StatusTransferred {
			return nil
		}

		now := s.clock().UTC()
		item.Status = StatusQueued
		item.Priority = item.Priority.Escalate()
		item.AnsweredBy = ""
		item.TransferredTo = ""
		item.AnsweredAt = nil
		item.TransferredAt = nil
		item.WaitTimeSeconds = nil
		item.UpdatedAt = now

		pos, err := s.queue.NextPosition(ctx, tenantID)
		if err != nil {
			return err
		}
		item.QueuePosition = &pos

		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		s.armRingTimer(item)
		// Escalated priority can move the call up; renumber from one snapshot.
		if err := s.queue.Renumber(ctx, tenantID); err != nil {
			return err
		}
		item, err = s.repo.Get(ctx, tenantID, item.ID)
		if err != nil {
			return err
		}
		s.finalize(ctx, item)
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Error("transfer timeout handling failed", "tenant", tenantID, "call", callID, "err", err)
	}
}
