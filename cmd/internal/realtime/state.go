package realtime

// State is the connection lifecycle state.
type State string

const (
	// StateDisabled means no operation touches the network. Either configured
	// off, or entered after the reconnect ceiling; terminal in both cases.
	StateDisabled State = "disabled"
	// StateDisconnected is idle and ready to Connect.
	StateDisconnected State = "disconnected"
	// StateConnecting means the first attempt of a Connect is in flight.
	StateConnecting State = "connecting"
	// StateConnected means the socket is open.
	StateConnected State = "connected"
	// StateReconnecting means a retry is scheduled or in flight.
	StateReconnecting State = "reconnecting"
)

var allStates = []State{StateDisabled, StateDisconnected, StateConnecting, StateConnected, StateReconnecting}

// Snapshot is a point-in-time view of the manager.
type Snapshot struct {
	State State `json:"state"`
	// ReconnectAttempts counts consecutive failed reconnect attempts.
	ReconnectAttempts int      `json:"reconnect_attempts"`
	Groups            []string `json:"groups"`
}
