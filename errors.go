package vaultagent

import (
	"errors"
	"fmt"
)

var (
	// ErrRoundLimitExceeded means the model kept requesting tools past MaxRounds.
	ErrRoundLimitExceeded = errors.New("vaultagent: round limit exceeded")
	// ErrSessionBusy is returned when a session is already handling a message.
	ErrSessionBusy = errors.New("vaultagent: session is busy")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("vaultagent: message is empty")
	// ErrNothingToResume is returned by Resume when the last exchange finished.
	ErrNothingToResume = errors.New("vaultagent: nothing to resume")
)

// AbortReason distinguishes why an exchange ended without a final answer.
type AbortReason string

const (
	AbortRoundLimitExceeded AbortReason = "RoundLimitExceeded"
	AbortModelUnavailable   AbortReason = "ModelUnavailable"
	AbortCancelled          AbortReason = "Cancelled"
)

// AbortError is returned by SendMessage and Resume when the exchange ends
// without a final answer. Turns completed before the abort stay in the
// conversation.
type AbortError struct {
	Reason AbortReason
	Rounds int
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("vaultagent: aborted (%s) after %d round(s): %v", e.Reason, e.Rounds, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// AbortReasonOf returns the abort reason carried by err, if any.
func AbortReasonOf(err error) (AbortReason, bool) {
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return abortErr.Reason, true
	}
	return "", false
}
