package vault

import (
	"errors"
	"fmt"
)

// Sentinel errors - Creation
var (
	ErrInvalidUnlockTime = errors.New("vault: unlock time should be in the future")
	ErrInvalidDeposit    = errors.New("vault: deposit must be a non-negative amount")
)

// Sentinel errors - Withdrawal
var (
	ErrTooEarly        = errors.New("vault: withdrawal attempted before unlock time")
	ErrNotOwner        = errors.New("vault: caller is not the owner")
	ErrAlreadyReleased = errors.New("vault: funds already released")
)

// Revert reasons as emitted by the Lock contract.
const (
	ReasonInvalidUnlockTime = "Unlock time should be in the future"
	ReasonTooEarly          = "You can't withdraw yet"
	ReasonNotOwner          = "You aren't the owner"
	ReasonAlreadyReleased   = "Nothing to withdraw"
)

// Kind classifies a rejected vault operation.
type Kind string

const (
	KindInvalidUnlockTime Kind = "INVALID_UNLOCK_TIME"
	KindTooEarly          Kind = "TOO_EARLY"
	KindNotOwner          Kind = "NOT_OWNER"
	KindAlreadyReleased   Kind = "ALREADY_RELEASED"
	KindUnknown           Kind = "UNKNOWN"
)

var kindReasons = map[Kind]string{
	KindInvalidUnlockTime: ReasonInvalidUnlockTime,
	KindTooEarly:          ReasonTooEarly,
	KindNotOwner:          ReasonNotOwner,
	KindAlreadyReleased:   ReasonAlreadyReleased,
}

var kindSentinels = map[Kind]error{
	KindInvalidUnlockTime: ErrInvalidUnlockTime,
	KindTooEarly:          ErrTooEarly,
	KindNotOwner:          ErrNotOwner,
	KindAlreadyReleased:   ErrAlreadyReleased,
}

// RevertError is a rejected vault operation. No state changes accompany it.
type RevertError struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *RevertError) Error() string {
	return fmt.Sprintf("reverted: %s", e.Reason)
}

// Is maps the revert onto the sentinel for its kind, so callers can use
// errors.Is(err, vault.ErrTooEarly) regardless of which backend produced it.
func (e *RevertError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	if !ok {
		return false
	}
	return errors.Is(sentinel, target)
}

// NewRevertError creates a RevertError carrying the canonical reason for kind.
func NewRevertError(kind Kind) *RevertError {
	reason, ok := kindReasons[kind]
	if !ok {
		reason = string(kind)
	}
	return &RevertError{Kind: kind, Reason: reason}
}

// RevertFromReason builds a RevertError from a revert string returned by a
// chain node. Unrecognised reasons keep their text under KindUnknown.
func RevertFromReason(reason string) *RevertError {
	return &RevertError{Kind: KindFromReason(reason), Reason: reason}
}

// KindFromReason maps a revert string back onto the vault error taxonomy.
func KindFromReason(reason string) Kind {
	for kind, r := range kindReasons {
		if r == reason {
			return kind
		}
	}
	return KindUnknown
}

// ReasonOf extracts the revert reason from err, if it carries one.
func ReasonOf(err error) (string, bool) {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Reason, true
	}
	return "", false
}
