package consumer

import "time"

// ConnState ingestion connection state
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReceiving    ConnState = "receiving"
	StateErroring     ConnState = "erroring"
)

// ConnectionStatus snapshot exposed to the UI as the connection indicator
type ConnectionStatus struct {
	Channel           string     `json:"channel"` // "stream" or "poll"
	State             ConnState  `json:"state"`
	AttemptID         string     `json:"attempt_id,omitempty"`
	Source            string     `json:"source,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastEventAt       *time.Time `json:"last_event_at,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
}

// Connected true while data can flow
func (s ConnectionStatus) Connected() bool {
	return s.State == StateConnected || s.State == StateReceiving
}
