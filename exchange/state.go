package exchange

import "fmt"

// State is the lifecycle of one order request across its attempts.
type State int

const (
	Pending State = iota
	Sent
	Success
	RateLimited
	TransientFailure
	FatalFailure
	Exhausted
	Canceled
)

var stateNames = map[State]string{
	Pending:          "pending",
	Sent:             "sent",
	Success:          "success",
	RateLimited:      "rate_limited",
	TransientFailure: "transient_failure",
	FatalFailure:     "fatal_failure",
	Exhausted:        "retries_exhausted",
	Canceled:         "canceled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case Success, FatalFailure, Exhausted, Canceled:
		return true
	}
	return false
}

// Event drives Transition.
type Event int

const (
	EventSend Event = iota
	EventOK
	EventRateLimit
	EventTransient
	EventFatal
	EventRetry
	EventGiveUp
	EventCancel
)

var eventNames = map[Event]string{
	EventSend:      "send",
	EventOK:        "ok",
	EventRateLimit: "rate_limit",
	EventTransient: "transient",
	EventFatal:     "fatal",
	EventRetry:     "retry",
	EventGiveUp:    "give_up",
	EventCancel:    "cancel",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// InvalidTransition is returned for an event the current state cannot take.
type InvalidTransition struct {
	From  State
	Event Event
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: %s on %s", e.Event, e.From)
}

// Transition is the pure transition function of the request state machine:
//
//	Pending --send--> Sent
//	Sent --ok/rate_limit/transient/fatal--> Success/RateLimited/TransientFailure/FatalFailure
//	RateLimited|TransientFailure --retry--> Pending, --give_up--> Exhausted
//	any non-terminal --cancel--> Canceled
func Transition(from State, ev Event) (State, error) {
	if ev == EventCancel && !from.Terminal() {
		return Canceled, nil
	}
	switch from {
	case Pending:
		if ev == EventSend {
			return Sent, nil
		}
	case Sent:
		switch ev {
		case EventOK:
			return Success, nil
		case EventRateLimit:
			return RateLimited, nil
		case EventTransient:
			return TransientFailure, nil
		case EventFatal:
			return FatalFailure, nil
		}
	case RateLimited, TransientFailure:
		switch ev {
		case EventRetry:
			return Pending, nil
		case EventGiveUp:
			return Exhausted, nil
		}
	}
	return from, &InvalidTransition{From: from, Event: ev}
}
