package models

import "strings"

// CallStatus displayed status of a service call
type CallStatus string

const (
	// StatusSentToRadios active, not yet acknowledged
	StatusSentToRadios CallStatus = "sentToRadios"
	// StatusAccepted acknowledged or expired; both render the same
	StatusAccepted CallStatus = "accepted"
)

// SourceKind which upstream payload shape a record came from
type SourceKind string

const (
	SourceLog     SourceKind = "log"
	SourceXML     SourceKind = "xml"
	SourceHTML    SourceKind = "html"
	SourceUnknown SourceKind = "unknown"
)

// ServiceCallRecord one detected stew call
type ServiceCallRecord struct {
	ID                  int64      `json:"id"`
	Text                string     `json:"text"`
	AffectedIdentifiers []string   `json:"affectedIdentifiers"`
	Status              CallStatus `json:"status"`
	AckBy               string     `json:"ackBy,omitempty"`
	AckTime             string     `json:"ackTime,omitempty"`
	Timestamp           string     `json:"timestamp,omitempty"`

	// Location is the "on LOCATION" part of log-sourced calls
	Location string     `json:"location,omitempty"`
	Port     int        `json:"port,omitempty"`
	RawType  string     `json:"type,omitempty"`
	Source   SourceKind `json:"source"`
}

// IsActive reports whether the call still waits for a steward
func (r ServiceCallRecord) IsActive() bool {
	return r.Status == StatusSentToRadios
}

// Clone deep-copies the identifier slice
func (r ServiceCallRecord) Clone() ServiceCallRecord {
	out := r
	if r.AffectedIdentifiers != nil {
		out.AffectedIdentifiers = append([]string(nil), r.AffectedIdentifiers...)
	}
	return out
}

// AckEvent acknowledgment seen on the log channel. It names an upstream
// alarm number, not a wristband.
type AckEvent struct {
	AlarmID int64  `json:"alarmId"`
	AckCode string `json:"ackCode,omitempty"`
	AckBy   string `json:"ackBy"`
	AckTime string `json:"ackTime,omitempty"`
}

// MapStatus folds raw upstream status strings onto the two displayed states.
// expired is shown as accepted as well.
func MapStatus(raw string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "acknowledged", "ack", "acked", "expired", "cleared", "closed", "done", "answered":
		return StatusAccepted
	default:
		return StatusSentToRadios
	}
}
