package exchange

import (
	"errors"
	"fmt"
)

// Kind classifies exchange failures.
type Kind int

const (
	KindRateLimited Kind = iota + 1
	KindTransient
	KindFatal
	KindRetriesExhausted
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient_failure"
	case KindFatal:
		return "fatal_failure"
	case KindRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; an *Error matches the sentinel of its Kind.
var (
	ErrRateLimited      = errors.New("exchange: rate limited")
	ErrTransientFailure = errors.New("exchange: transient failure")
	ErrFatalFailure     = errors.New("exchange: fatal failure")
	ErrRetriesExhausted = errors.New("exchange: retries exhausted")
)

// Error describes one failed attempt, or for KindRetriesExhausted the whole
// request, in which case Last holds the final attempt's failure.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, 0 when no response arrived
	Code   string // exchange error code from the body, if any
	Msg    string
	Err    error // underlying transport or decode error
	Last   *Error
}

func (e *Error) Error() string {
	if e.Kind == KindRetriesExhausted && e.Last != nil {
		return fmt.Sprintf("exchange: retries exhausted, last failure: %v", e.Last)
	}
	msg := fmt.Sprintf("exchange %s", e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" code=%s", e.Code)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e.Last != nil {
		return e.Last
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrTransientFailure:
		return e.Kind == KindTransient
	case ErrFatalFailure:
		return e.Kind == KindFatal
	case ErrRetriesExhausted:
		return e.Kind == KindRetriesExhausted
	}
	return false
}

func (k Kind) event() Event {
	switch k {
	case KindRateLimited:
		return EventRateLimit
	case KindTransient:
		return EventTransient
	default:
		return EventFatal
	}
}
