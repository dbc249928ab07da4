package controller

// State is the wrappee lifecycle state. Exactly one state is active at a
// time and only the controller may transition it.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateNames lists every state for gauge-style metrics.
var StateNames = []string{
	StateNotStarted.String(),
	StateStarting.String(),
	StateRunning.String(),
	StateRestarting.String(),
	StateStopped.String(),
	StateFailed.String(),
}

// Snapshot is a cheap, non-blocking view of the controller.
type Snapshot struct {
	State      State  `json:"state"`
	PID        int    `json:"pid,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}
