package server

// State is a server lifecycle state.
type State int32

// Lifecycle states in the order a server moves through them.
const (
	StateInit State = iota
	StateConfigured
	StateListening
	StateServing
	StateShuttingDown
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConfigured:
		return "configured"
	case StateListening:
		return "listening"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
