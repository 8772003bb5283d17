package bridge

import "fmt"

// State is the lifecycle stage of a Bridge.
type State int32

const (
	// StateCreated is the state of a bridge that has not spawned its PTY yet.
	StateCreated State = iota

	// StateRunning is entered once the PTY exists and both directions are pumping.
	StateRunning

	// StateDraining begins the instant either direction ends.
	StateDraining

	// StateClosed is terminal. All resources have been released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// canTransition reports whether the state machine allows from -> to.
// A spawn failure or an early Close goes straight from Created to Closed.
func canTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateRunning || to == StateClosed
	case StateRunning:
		return to == StateDraining
	case StateDraining:
		return to == StateClosed
	default:
		return false
	}
}

// EndReason records why a bridge stopped.
type EndReason string

const (
	EndReasonNone               EndReason = ""
	EndReasonPTYExited          EndReason = "pty_exited"
	EndReasonClientDisconnected EndReason = "client_disconnected"
	EndReasonCancelled          EndReason = "cancelled"
	EndReasonIOError            EndReason = "io_error"
	EndReasonSpawnFailed        EndReason = "spawn_failed"
	EndReasonMessageTooLarge    EndReason = "message_too_large"
)
