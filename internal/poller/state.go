package poller

// State is the sampler's lifecycle state.
type State int32

const (
	StateInit State = iota
	StatePolling
	StateEmitting
	StateIdle
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePolling:
		return "polling"
	case StateEmitting:
		return "emitting"
	case StateIdle:
		return "idle"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
