package stream

// State models the capture lifecycle as an explicit machine instead of
// nested device callbacks.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StatePreviewing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StatePreviewing:
		return "previewing"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// canTransition is the pure transition function. Stopping is reachable
// from any active state so that explicit stop, device disconnect, and
// I/O errors can all trigger teardown.
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateOpening
	case StateOpening:
		return to == StatePreviewing || to == StateStopping
	case StatePreviewing:
		return to == StateStopping
	case StateStopping:
		return to == StateIdle
	}
	return false
}
