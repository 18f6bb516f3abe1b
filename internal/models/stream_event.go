package models

import "time"

// Stream event types emitted by the aggregator
const (
	EventConnected = "connected"
	EventLogData   = "log_data"
	EventAlarmData = "alarm_data"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// StreamEvent one newline-delimited JSON message on the stream channel
type StreamEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Source    string `json:"source,omitempty"`
}

// NewStreamEvent stamps the event with the current unix milliseconds
func NewStreamEvent(eventType string) StreamEvent {
	return StreamEvent{Type: eventType, Timestamp: time.Now().UnixMilli()}
}

// Payload raw upstream body plus the parser to use for it
type Payload struct {
	Kind      SourceKind
	Body      string
	Source    string // endpoint URL
	FetchedAt time.Time
}
