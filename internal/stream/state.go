package stream

// State is a stream session's lifecycle stage.
type State int32

// Session states. Transitions only move forward, except that a failed
// seed leaves the session in StateSeeding for the next tick.
const (
	StateIdle State = iota
	StateSeeding
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
