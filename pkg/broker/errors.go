package broker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies broker-signalled failures so callers can branch on
// meaning instead of matching raw error text.
type ErrorKind string

const (
	// KindConflictingOrder means an opposing open order already exists on the
	// symbol (the broker's wash-trade protection). Expected; skip, do not
	// retry at a different price.
	KindConflictingOrder ErrorKind = "conflicting_order"
	// KindInsufficientFunds means the order exceeds available buying power.
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	// KindNotTradable means the asset cannot be traded through the API.
	KindNotTradable ErrorKind = "not_tradable"
	// KindNotFound means the referenced order or symbol does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindRateLimited means the venue throttled the request.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUnavailable covers transport failures and venue outages.
	KindUnavailable ErrorKind = "unavailable"
)

// Error is a classified broker failure.
type Error struct {
	Kind    ErrorKind
	Op      string // The provider operation that failed, e.g. "submit_limit_order"
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("broker: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("broker: %s: %s: %s", e.Op, e.Kind, e.Message)
}

// NewError constructs a classified broker error.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. Unclassified
// errors report KindUnavailable so transient transport failures and unknown
// venue errors degrade to the same skip path.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnavailable
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}
