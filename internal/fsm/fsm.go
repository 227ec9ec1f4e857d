package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateStopping  State = "stopping"
)

const (
	EventStart     Event = "start"
	EventStop      Event = "stop"
	EventTimeout   Event = "timeout"
	EventFinalized Event = "finalized"
	EventFail      Event = "fail"
)

// Transition applies one lifecycle event to the current state. EventFail is
// valid from any state and always lands on idle so the session stays usable
// after a failed cycle.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventStop, EventTimeout:
			return StateStopping, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventFinalized:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
