package callqueue

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("callqueue: call not found")
	ErrInvalidArgument  = errors.New("callqueue: invalid argument")
	ErrDuplicateCall    = errors.New("callqueue: call already exists for external id")
	ErrNoAvailableAgent = errors.New("callqueue: no available agent")

	// errClaimFailed is the repository-level signal that the answer
	// compare-and-set did not match; the service reloads and classifies it.
	errClaimFailed = errors.New("callqueue: answer claim failed")
)

// InvalidTransitionError rejects an action or event incompatible with the
// call's current status, naming the offending from/event pair.
type InvalidTransitionError struct {
	From  Status
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("callqueue: invalid transition: %s on status %s", e.Event, e.From)
}

// AlreadyAnsweredError is returned to the loser of a concurrent answer race.
// Informational for the losing agent's console, never destructive.
type AlreadyAnsweredError struct {
	CallID     string
	AnsweredBy string
}

func (e *AlreadyAnsweredError) Error() string {
	return fmt.Sprintf("callqueue: call %s already answered by %s", e.CallID, e.AnsweredBy)
}

func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

func IsAlreadyAnswered(err error) bool {
	var aa *AlreadyAnsweredError
	return errors.As(err, &aa)
}
