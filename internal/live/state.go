// Package live keeps one backend live-data socket per value and fans its
// updates out to listeners.
package live

import "time"

// State is the connection state of a subscription.
type State int

const (
	Connecting State = iota
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Label is the human readable description shown next to the indicator.
func (s State) Label() string {
	switch s {
	case Connected:
		return "Connected, receiving data"
	case Failed:
		return "Failed. Cannot connect to the server"
	default:
		return "Connecting"
	}
}

// Update is delivered to listeners on every state change and every value.
type Update struct {
	State State     `json:"-"`
	Value string    `json:"value"`
	Time  time.Time `json:"time"`
}
