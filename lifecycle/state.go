package lifecycle

import (
	"fmt"
	"time"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Failed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", string(b))
}

// StateChange is emitted on every transition.
type StateChange struct {
	Endpoint string    `json:"endpoint"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Status is a point-in-time view of a Manager.
type Status struct {
	Endpoint  string    `json:"endpoint"`
	State     State     `json:"state"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}
